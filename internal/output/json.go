package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/pipeviz/internal/engine"
	"github.com/bgricker/pipeviz/internal/graph"
	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/report"
)

// Item is one discovered pipeline file with its parse outcome.
type Item struct {
	Path   string
	Result engine.Result
	Err    error
}

// Entry summarizes the item for reports.
func (i Item) Entry() report.Entry {
	if i.Err != nil {
		return report.FailedEntry(i.Path, i.Err)
	}
	return report.NewEntry(i.Path, i.Result)
}

// JSONRenderer emits structured pipeline data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Report captures JSON output schema.
type Report struct {
	Pipelines []PipelineReport `json:"pipelines"`
	Summary   report.Summary   `json:"summary"`
}

// PipelineReport is the JSON form of one Item.
type PipelineReport struct {
	report.Entry
	Pipeline    *pipeline.Pipeline `json:"pipeline,omitempty"`
	Diagram     string             `json:"diagram,omitempty"`
	NodeDetails *graph.Index       `json:"nodeDetails,omitempty"`
}

// NewReport builds the JSON report for items. Diagrams and node details are
// included only when withDiagram is set.
func NewReport(items []Item, summary report.Summary, withDiagram bool) Report {
	out := Report{Pipelines: make([]PipelineReport, 0, len(items)), Summary: summary}
	for _, item := range items {
		pr := PipelineReport{Entry: item.Entry()}
		if item.Err == nil {
			p := item.Result.Pipeline
			pr.Pipeline = &p
			if withDiagram {
				pr.Diagram = item.Result.Diagram
				pr.NodeDetails = item.Result.NodeDetails
			}
		}
		out.Pipelines = append(out.Pipelines, pr)
	}
	return out
}

// Render encodes the report as JSON.
func (j *JSONRenderer) Render(report Report) error {
	return j.encode(report)
}

// RenderNode encodes a single node detail.
func (j *JSONRenderer) RenderNode(id string, detail graph.NodeDetail) error {
	return j.encode(struct {
		ID string `json:"id"`
		graph.NodeDetail
	}{ID: id, NodeDetail: detail})
}

func (j *JSONRenderer) encode(v any) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
