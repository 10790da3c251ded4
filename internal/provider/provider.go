package provider

import "github.com/bgricker/pipeviz/internal/pipeline"

// Parser turns raw pipeline text of one format into a RawPipeline.
type Parser interface {
	Format() pipeline.Format
	Parse(content string) (RawPipeline, error)
}

// RawPipeline holds the format-specific concepts extracted by a parser driver
// before cross-format normalization.
type RawPipeline struct {
	Format pipeline.Format
	Name   string
	// StageOrder is the declared stage sequence. It is empty for formats
	// where ordering comes from job dependencies.
	StageOrder []string
	Jobs       []RawJob
	Warnings   []pipeline.Warning
}

// RawJob is a job as declared in source.
type RawJob struct {
	ID    string
	Name  string
	Stage string
	// StageIndex is the 1-based position in StageOrder of the stage
	// occurrence holding the job. Zero means the stage is looked up by name.
	StageIndex int
	Needs      []string
	Steps      []RawStep

	Condition string
	// Group names the parallel block a job was declared in, if any.
	Group string

	Manual          bool
	AllowFailure    *bool
	ApprovalMessage string

	Matrix   []MatrixAxis
	Parallel int

	Line int
}

// MatrixAxis is one dimension of a build matrix in declaration order.
type MatrixAxis struct {
	Name   string
	Values []string
}

// RawStep is a step as declared in source.
type RawStep struct {
	Name              string
	Commands          []string
	Condition         string
	ContinueOnFailure bool
}

// Warn appends a warning to the pipeline.
func (r *RawPipeline) Warn(job string, line int, message string) {
	r.Warnings = append(r.Warnings, pipeline.Warning{Job: job, Line: line, Message: message})
}
