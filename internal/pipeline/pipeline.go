package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Format identifies the CI system a pipeline definition was written for.
type Format string

const (
	FormatJenkins       Format = "jenkins"
	FormatGitHubActions Format = "github"
	FormatGitLabCI      Format = "gitlab"
)

// ParseFormat resolves a caller supplied format name, accepting a few common aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jenkins", "jenkinsfile", "groovy":
		return FormatJenkins, nil
	case "github", "github-actions", "githubactions", "gha":
		return FormatGitHubActions, nil
	case "gitlab", "gitlab-ci", "gitlabci":
		return FormatGitLabCI, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// StageKind distinguishes regular stages from the synthetic stages added during normalization.
type StageKind string

const (
	StageNormal   StageKind = "normal"
	StageApproval StageKind = "approval"
	StageTerminal StageKind = "terminal"
)

// Pipeline is the format independent representation of a CI/CD workflow.
type Pipeline struct {
	Format     Format    `json:"format"`
	Name       string    `json:"name"`
	SourceHash string    `json:"source_hash"`
	Stages     []Stage   `json:"stages"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// Warning captures non-fatal issues encountered while parsing a definition.
type Warning struct {
	Job     string `json:"job,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	var b strings.Builder
	if w.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", w.Line)
	}
	if w.Job != "" {
		fmt.Fprintf(&b, "%s: ", w.Job)
	}
	b.WriteString(w.Message)
	return b.String()
}

// Stage is a top-level ordered phase of a pipeline.
type Stage struct {
	Name     string    `json:"name"`
	Kind     StageKind `json:"kind"`
	Jobs     []Job     `json:"jobs"`
	Trigger  *Trigger  `json:"trigger,omitempty"`
	Approval *Approval `json:"approval,omitempty"`
}

// Trigger describes the condition under which a stage runs.
type Trigger struct {
	Condition string `json:"condition,omitempty"`
	Manual    bool   `json:"manual,omitempty"`
}

// Approval names the two successor stages of an approval gate.
type Approval struct {
	Message  string `json:"message,omitempty"`
	Approved string `json:"approved"`
	Rejected string `json:"rejected"`
}

// Job is a unit of work within a stage.
type Job struct {
	Name         string   `json:"name"`
	ID           string   `json:"id,omitempty"`
	Condition    string   `json:"condition,omitempty"`
	ParallelWith []string `json:"parallel_with,omitempty"`
	Steps        []Step   `json:"steps"`
}

// Step is the smallest unit of a pipeline, a named group of commands.
type Step struct {
	Name              string   `json:"name"`
	Commands          []string `json:"commands"`
	Condition         string   `json:"condition,omitempty"`
	ContinueOnFailure bool     `json:"continue_on_failure,omitempty"`
}

// Stage returns the stage with the given name.
func (p Pipeline) Stage(name string) (Stage, bool) {
	for _, st := range p.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return Stage{}, false
}

// Counts returns the number of stages, jobs and steps in the pipeline.
func (p Pipeline) Counts() (stages, jobs, steps int) {
	for _, st := range p.Stages {
		stages++
		jobs += len(st.Jobs)
		for _, job := range st.Jobs {
			steps += len(job.Steps)
		}
	}
	return stages, jobs, steps
}

// HashSource returns the hex encoded sha256 of raw pipeline content.
func HashSource(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
