// Package engine is the single entry point that turns pipeline source text
// into a normalized pipeline, its graph, a diagram and the node detail index.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bgricker/pipeviz/internal/detect"
	"github.com/bgricker/pipeviz/internal/diagram"
	"github.com/bgricker/pipeviz/internal/filter"
	"github.com/bgricker/pipeviz/internal/graph"
	"github.com/bgricker/pipeviz/internal/normalize"
	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/provider"
	"github.com/bgricker/pipeviz/internal/provider/github"
	"github.com/bgricker/pipeviz/internal/provider/gitlab"
	"github.com/bgricker/pipeviz/internal/provider/jenkins"
)

// DefaultMaxBytes is the input ceiling applied when Options.MaxBytes is zero.
const DefaultMaxBytes = 2 << 20

// Options tunes ParsePipeline.
type Options struct {
	// FormatHint overrides format detection when set.
	FormatHint string
	MaxBytes   int
	MaxNodes   int
	Diagram    diagram.Kind
	// Filter narrows the normalized pipeline before the graph is built.
	Filter filter.Criteria
	Logger *zap.Logger
}

// Result is everything derived from one parse call.
type Result struct {
	Pipeline    pipeline.Pipeline `json:"pipeline"`
	Graph       *graph.Graph      `json:"graph"`
	NodeDetails *graph.Index      `json:"nodeDetails"`
	Diagram     string            `json:"diagram"`
}

// parsers maps each format to its driver.
var parsers = map[pipeline.Format]func() provider.Parser{
	pipeline.FormatGitHubActions: func() provider.Parser { return github.NewParser() },
	pipeline.FormatGitLabCI:      func() provider.Parser { return gitlab.NewParser() },
	pipeline.FormatJenkins:       func() provider.Parser { return jenkins.NewParser() },
}

// ParserFor returns the driver for format.
func ParserFor(format pipeline.Format) (provider.Parser, error) {
	newParser, ok := parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %q", pipeline.ErrUnknownFormat, format)
	}
	return newParser(), nil
}

// ParsePipeline runs the full transform on content. The size ceiling is
// checked before detection so oversized input never reaches a parser.
func ParsePipeline(content, filename string, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(content) > maxBytes {
		return Result{}, &pipeline.SizeLimitError{Size: len(content), Limit: maxBytes}
	}

	format, err := detect.Detect(filename, content, opts.FormatHint)
	if err != nil {
		return Result{}, err
	}
	parser, err := ParserFor(format)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("detected pipeline format",
		zap.String("filename", filename),
		zap.String("format", string(format)),
		zap.Bool("hinted", opts.FormatHint != ""))

	raw, err := parser.Parse(content)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", displayName(filename), err)
	}

	p, err := normalize.Normalize(raw)
	if err != nil {
		return Result{}, fmt.Errorf("normalize %s: %w", displayName(filename), err)
	}
	if !opts.Filter.Empty() {
		p = filter.Apply(p, opts.Filter)
	}
	p.SourceHash = pipeline.HashSource(content)
	if p.Name == "" {
		p.Name = filename
	}
	for _, w := range p.Warnings {
		logger.Debug("pipeline warning", zap.String("filename", filename), zap.String("warning", w.String()))
	}

	g, index, err := graph.Build(p, graph.Options{MaxNodes: opts.MaxNodes})
	if err != nil {
		return Result{}, fmt.Errorf("build graph for %s: %w", displayName(filename), err)
	}

	text, err := diagram.Render(opts.Diagram, g, p.Name)
	if err != nil {
		return Result{}, err
	}

	stages, jobs, steps := p.Counts()
	logger.Debug("parsed pipeline",
		zap.String("filename", filename),
		zap.String("hash", p.SourceHash),
		zap.Int("stages", stages),
		zap.Int("jobs", jobs),
		zap.Int("steps", steps),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)))

	return Result{Pipeline: p, Graph: g, NodeDetails: index, Diagram: text}, nil
}

func displayName(filename string) string {
	if filename == "" {
		return "input"
	}
	return filename
}
