package report

import (
	"time"

	"github.com/bgricker/pipeviz/internal/engine"
	"github.com/bgricker/pipeviz/internal/pipeline"
)

// Entry captures the outcome of parsing a single pipeline file.
type Entry struct {
	Path       string   `json:"path"`
	Format     string   `json:"format,omitempty"`
	Name       string   `json:"name,omitempty"`
	SourceHash string   `json:"source_hash,omitempty"`
	Stages     int      `json:"stages"`
	Jobs       int      `json:"jobs"`
	Steps      int      `json:"steps"`
	Gates      int      `json:"gates"`
	Nodes      int      `json:"nodes"`
	Edges      int      `json:"edges"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// NewEntry summarizes a successful parse of path.
func NewEntry(path string, res engine.Result) Entry {
	p := res.Pipeline
	stages, jobs, steps := p.Counts()
	entry := Entry{
		Path:       path,
		Format:     string(p.Format),
		Name:       p.Name,
		SourceHash: p.SourceHash,
		Stages:     stages,
		Jobs:       jobs,
		Steps:      steps,
	}
	for _, st := range p.Stages {
		if st.Kind == pipeline.StageApproval {
			entry.Gates++
		}
	}
	if res.Graph != nil {
		entry.Nodes = len(res.Graph.Nodes)
		entry.Edges = len(res.Graph.Edges)
	}
	for _, w := range p.Warnings {
		entry.Warnings = append(entry.Warnings, w.String())
	}
	return entry
}

// FailedEntry records a parse failure for path.
func FailedEntry(path string, err error) Entry {
	return Entry{Path: path, Error: err.Error()}
}

// Summary aggregates results across all parsed pipelines.
type Summary struct {
	TotalPipelines int           `json:"total_pipelines"`
	TotalStages    int           `json:"total_stages"`
	TotalJobs      int           `json:"total_jobs"`
	TotalSteps     int           `json:"total_steps"`
	TotalGates     int           `json:"total_gates"`
	Warnings       int           `json:"warnings"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"-"`
	DurationMS     int64         `json:"duration_ms"`
	ExitCode       int           `json:"exit_code"`
}

// Summarize totals entries. ExitCode is 1 when any entry failed.
func Summarize(entries []Entry, elapsed time.Duration) Summary {
	s := Summary{
		TotalPipelines: len(entries),
		Duration:       elapsed,
		DurationMS:     elapsed.Milliseconds(),
	}
	for _, e := range entries {
		if e.Error != "" {
			s.Failed++
			continue
		}
		s.TotalStages += e.Stages
		s.TotalJobs += e.Jobs
		s.TotalSteps += e.Steps
		s.TotalGates += e.Gates
		s.Warnings += len(e.Warnings)
	}
	if s.Failed > 0 {
		s.ExitCode = 1
	}
	return s
}
