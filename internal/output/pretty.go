package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bgricker/pipeviz/internal/graph"
	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/report"
)

// PrettyRenderer renders pipelines in a human-friendly format.
type PrettyRenderer struct {
	out io.Writer
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out}
}

// RenderList renders the stage, job and step breakdown of each item.
func (p *PrettyRenderer) RenderList(items []Item) error {
	var buffer bytes.Buffer
	for _, item := range items {
		if item.Err != nil {
			fmt.Fprintf(&buffer, "Pipeline %s\n", item.Path)
			fmt.Fprintf(&buffer, "  error: %s\n", item.Err)
			continue
		}
		pl := item.Result.Pipeline
		fmt.Fprintf(&buffer, "Pipeline %s [%s]\n", decorateName(pl.Name, item.Path), pl.Format)
		for _, st := range pl.Stages {
			writeStage(&buffer, st)
		}
		for _, w := range pl.Warnings {
			fmt.Fprintf(&buffer, "  warning: %s\n", w.String())
		}
		if _, err := buffer.WriteTo(p.out); err != nil {
			return err
		}
		buffer.Reset()
	}
	_, err := buffer.WriteTo(p.out)
	return err
}

func writeStage(buffer *bytes.Buffer, st pipeline.Stage) {
	switch st.Kind {
	case pipeline.StageApproval:
		fmt.Fprintf(buffer, "  Gate %s\n", st.Name)
		if st.Approval != nil {
			if st.Approval.Message != "" {
				fmt.Fprintf(buffer, "    message: %s\n", st.Approval.Message)
			}
			fmt.Fprintf(buffer, "    approved → %s\n", st.Approval.Approved)
			fmt.Fprintf(buffer, "    rejected → %s\n", st.Approval.Rejected)
		}
		return
	case pipeline.StageTerminal:
		fmt.Fprintf(buffer, "  End %s\n", st.Name)
		return
	}

	fmt.Fprintf(buffer, "  Stage %s", st.Name)
	if st.Trigger != nil && st.Trigger.Condition != "" {
		fmt.Fprintf(buffer, " (when %s)", st.Trigger.Condition)
	}
	buffer.WriteString("\n")
	for _, job := range st.Jobs {
		fmt.Fprintf(buffer, "    Job %s", job.Name)
		if job.Condition != "" {
			fmt.Fprintf(buffer, " (when %s)", job.Condition)
		}
		buffer.WriteString("\n")
		for _, step := range job.Steps {
			label := step.Name
			if label == "" && len(step.Commands) > 0 {
				label = step.Commands[0]
			}
			fmt.Fprintf(buffer, "      • %s\n", label)
		}
	}
}

// RenderDiagrams writes each item's diagram preceded by a header line.
func (p *PrettyRenderer) RenderDiagrams(items []Item) error {
	for i, item := range items {
		if i > 0 {
			if _, err := fmt.Fprintln(p.out); err != nil {
				return err
			}
		}
		if item.Err != nil {
			if _, err := fmt.Fprintf(p.out, "%%%% %s: %s\n", item.Path, item.Err); err != nil {
				return err
			}
			continue
		}
		if len(items) > 1 {
			if _, err := fmt.Fprintf(p.out, "%%%% %s\n", item.Path); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(p.out, item.Result.Diagram); err != nil {
			return err
		}
	}
	return nil
}

// RenderNode shows the details behind one diagram node.
func (p *PrettyRenderer) RenderNode(id string, detail graph.NodeDetail) error {
	var buffer bytes.Buffer
	fmt.Fprintf(&buffer, "%s %s (%s)\n", detail.Kind, detail.Name, id)
	for _, step := range detail.Steps {
		fmt.Fprintf(&buffer, "  • %s\n", step.Name)
		if step.Condition != "" {
			fmt.Fprintf(&buffer, "    when: %s\n", step.Condition)
		}
		if step.ContinueOnFailure {
			buffer.WriteString("    continues on failure\n")
		}
		if step.Command != "" {
			fmt.Fprintf(&buffer, "%s\n", indent(step.Command, "    $ "))
		}
	}
	_, err := buffer.WriteTo(p.out)
	return err
}

// RenderSummary writes the closing summary line.
func (p *PrettyRenderer) RenderSummary(summary report.Summary) error {
	_, err := fmt.Fprintf(p.out, "SUMMARY: %d pipelines, %d stages, %d jobs, %d steps, %d gates, %d failed (%s)\n",
		summary.TotalPipelines, summary.TotalStages, summary.TotalJobs, summary.TotalSteps,
		summary.TotalGates, summary.Failed, formatDuration(summary.Duration))
	return err
}

func decorateName(name, path string) string {
	if name == "" || name == path {
		return path
	}
	return fmt.Sprintf("%s (%s)", name, path)
}

func indent(s, pad string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
