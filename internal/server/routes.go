package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bgricker/pipeviz/internal/diagram"
	"github.com/bgricker/pipeviz/internal/engine"
	"github.com/bgricker/pipeviz/internal/graph"
	"github.com/bgricker/pipeviz/internal/pipeline"
)

type parseResponse struct {
	Hash   string `json:"hash"`
	Cached bool   `json:"cached"`
	engine.Result
}

type nodeResponse struct {
	Hash string `json:"hash"`
	ID   string `json:"id"`
	graph.NodeDetail
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Line  int    `json:"line,omitempty"`
}

// handleParse accepts the raw definition as the request body. The filename,
// format and diagram query parameters feed detection and rendering.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filename := q.Get("filename")
	hint := q.Get("format")
	kind := s.cfg.Diagram
	if v := q.Get("diagram"); v != "" {
		kind = diagram.Kind(v)
	}

	// One byte past the ceiling is enough for the engine to report the overflow.
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.cfg.MaxBytes)+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "request"})
		return
	}
	content := string(body)

	hash := pipeline.HashSource(content)
	if entry, ok := s.cache.Get(hash); ok && entry.filename == filename && entry.hint == hint && entry.diagram == kind {
		writeJSON(w, http.StatusOK, parseResponse{Hash: hash, Cached: true, Result: entry.result})
		return
	}

	res, err := engine.ParsePipeline(content, filename, engine.Options{
		FormatHint: hint,
		MaxBytes:   s.cfg.MaxBytes,
		MaxNodes:   s.cfg.MaxNodes,
		Diagram:    kind,
		Logger:     s.logger,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.cache.Add(hash, cacheEntry{filename: filename, hint: hint, diagram: kind, result: res})
	writeJSON(w, http.StatusOK, parseResponse{Hash: hash, Result: res})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	entry, ok := s.cache.Get(hash)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "pipeline not found", Kind: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{Hash: hash, Cached: true, Result: entry.result})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	id := chi.URLParam(r, "id")

	entry, ok := s.cache.Get(hash)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "pipeline not found", Kind: "not_found"})
		return
	}
	detail, err := entry.result.NodeDetails.Lookup(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeResponse{Hash: hash, ID: id, NodeDetail: detail})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// classify maps the error taxonomy onto HTTP statuses.
func classify(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}

	var (
		syntaxErr      *pipeline.SyntaxError
		unsupportedErr *pipeline.UnsupportedFeatureError
		normalizeErr   *pipeline.NormalizationError
	)
	switch {
	case errors.As(err, &syntaxErr):
		resp.Kind, resp.Line = "syntax", syntaxErr.Line
		return http.StatusBadRequest, resp
	case errors.As(err, &unsupportedErr):
		resp.Kind = "unsupported_feature"
		return http.StatusBadRequest, resp
	case errors.Is(err, pipeline.ErrUnknownFormat):
		resp.Kind = "unknown_format"
		return http.StatusBadRequest, resp
	case errors.Is(err, pipeline.ErrSizeLimitExceeded):
		resp.Kind = "size_limit_exceeded"
		return http.StatusRequestEntityTooLarge, resp
	case errors.As(err, &normalizeErr):
		resp.Kind = "normalization"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, pipeline.ErrGraphTooLarge):
		resp.Kind = "graph_too_large"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, graph.ErrNodeNotFound):
		resp.Kind = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, diagram.ErrUnknownKind):
		resp.Kind = "request"
		return http.StatusBadRequest, resp
	default:
		resp.Kind = "internal"
		return http.StatusInternalServerError, resp
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
