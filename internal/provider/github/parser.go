package github

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/provider"
)

// Parser decodes GitHub Actions workflow files.
type Parser struct{}

// NewParser constructs a GitHub Actions Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format reports the format handled by this parser.
func (p *Parser) Format() pipeline.Format {
	return pipeline.FormatGitHubActions
}

// Parse decodes a workflow document into a RawPipeline. Jobs keep their
// source order; ordering between them is carried by Needs.
func (p *Parser) Parse(content string) (provider.RawPipeline, error) {
	root, err := provider.DecodeYAML(content)
	if err != nil {
		return provider.RawPipeline{}, err
	}
	return decodeWorkflow(root)
}

func decodeWorkflow(root *yaml.Node) (provider.RawPipeline, error) {
	var wfDoc workflowDocument
	if err := provider.DecodeNode(root, &wfDoc); err != nil {
		return provider.RawPipeline{}, err
	}

	raw := provider.RawPipeline{
		Format: pipeline.FormatGitHubActions,
		Name:   wfDoc.Name,
	}

	jobs := provider.Pairs(&wfDoc.Jobs)
	if len(jobs) == 0 {
		raw.Warn("", 0, "workflow defines no jobs")
		return raw, nil
	}

	for _, entry := range jobs {
		job, err := decodeJob(&raw, entry)
		if err != nil {
			return provider.RawPipeline{}, err
		}
		raw.Jobs = append(raw.Jobs, job)
	}

	return raw, nil
}

func decodeJob(raw *provider.RawPipeline, entry provider.Pair) (provider.RawJob, error) {
	jobID := entry.Key
	var jobDoc jobDocument
	if err := provider.DecodeNode(entry.Value, &jobDoc); err != nil {
		return provider.RawJob{}, err
	}

	job := provider.RawJob{
		ID:        jobID,
		Name:      jobDoc.Name,
		Needs:     provider.Strings(&jobDoc.Needs),
		Condition: strings.TrimSpace(jobDoc.If),
		Line:      entry.Line,
	}
	if job.Name == "" {
		job.Name = jobID
	}

	if jobDoc.Services != nil {
		raw.Warn(jobID, entry.Line, "services are not modelled")
	}
	if env := environmentName(&jobDoc.Environment); env != "" {
		raw.Warn(jobID, entry.Line, fmt.Sprintf("environment %q protection rules are not modelled", env))
	}
	job.Matrix = decodeMatrix(raw, jobID, &jobDoc.Strategy.Matrix)

	if jobDoc.Uses != "" {
		job.Steps = append(job.Steps, provider.RawStep{
			Name:     "call workflow",
			Commands: []string{"uses: " + jobDoc.Uses},
		})
		return job, nil
	}

	job.Steps = make([]provider.RawStep, 0, len(jobDoc.Steps))
	for idx, stepDoc := range jobDoc.Steps {
		step := provider.RawStep{
			Name:      stepDoc.Name,
			Condition: strings.TrimSpace(stepDoc.If),
		}
		switch {
		case stepDoc.Run != "":
			step.Commands = []string{strings.TrimRight(stepDoc.Run, "\n")}
		case stepDoc.Uses != "":
			step.Commands = []string{"uses: " + stepDoc.Uses}
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("step %d", idx+1)
		}
		if !stepDoc.ContinueOnError.IsZero() {
			v, ok := provider.Bool(&stepDoc.ContinueOnError)
			if !ok {
				raw.Warn(jobID, stepDoc.ContinueOnError.Line, fmt.Sprintf("step %q has a non-literal continue-on-error", step.Name))
			}
			step.ContinueOnFailure = v
		}
		job.Steps = append(job.Steps, step)
	}

	return job, nil
}

func decodeMatrix(raw *provider.RawPipeline, jobID string, node *yaml.Node) []provider.MatrixAxis {
	if node.IsZero() {
		return nil
	}
	if provider.Resolve(node).Kind == yaml.ScalarNode {
		raw.Warn(jobID, node.Line, "dynamic strategy.matrix is not expanded")
		return nil
	}

	var axes []provider.MatrixAxis
	for _, pair := range provider.Pairs(node) {
		switch pair.Key {
		case "include", "exclude":
			raw.Warn(jobID, pair.Line, fmt.Sprintf("strategy.matrix.%s is not expanded", pair.Key))
			continue
		}
		value := provider.Resolve(pair.Value)
		if value.Kind != yaml.SequenceNode {
			raw.Warn(jobID, pair.Line, fmt.Sprintf("matrix axis %q is not a list", pair.Key))
			continue
		}
		axis := provider.MatrixAxis{Name: pair.Key}
		for _, item := range value.Content {
			axis.Values = append(axis.Values, matrixValue(item))
		}
		if len(axis.Values) > 0 {
			axes = append(axes, axis)
		}
	}
	return axes
}

func matrixValue(node *yaml.Node) string {
	node = provider.Resolve(node)
	if node.Kind == yaml.ScalarNode {
		return node.Value
	}
	// Mapping entries render as compact flow YAML.
	flow := *node
	flow.Style = yaml.FlowStyle
	out, err := yaml.Marshal(&flow)
	if err != nil {
		return node.Value
	}
	return strings.TrimSpace(string(out))
}

func environmentName(node *yaml.Node) string {
	if node.IsZero() {
		return ""
	}
	if name := provider.Scalar(node); name != "" {
		return name
	}
	return provider.Scalar(provider.Lookup(node, "name"))
}

type workflowDocument struct {
	Name string    `yaml:"name"`
	Jobs yaml.Node `yaml:"jobs"`
}

type jobDocument struct {
	Name        string           `yaml:"name"`
	Needs       yaml.Node        `yaml:"needs"`
	If          string           `yaml:"if"`
	Uses        string           `yaml:"uses"`
	Steps       []stepDocument   `yaml:"steps"`
	Services    interface{}      `yaml:"services"`
	Environment yaml.Node        `yaml:"environment"`
	Strategy    strategyDocument `yaml:"strategy"`
}

type strategyDocument struct {
	Matrix yaml.Node `yaml:"matrix"`
}

type stepDocument struct {
	Name            string    `yaml:"name"`
	Run             string    `yaml:"run"`
	Uses            string    `yaml:"uses"`
	If              string    `yaml:"if"`
	ContinueOnError yaml.Node `yaml:"continue-on-error"`
}
