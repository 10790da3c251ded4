package jenkins

import (
	"fmt"
	"strings"

	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/provider"
)

// Parser reads the declarative subset of Jenkinsfile syntax.
type Parser struct{}

// NewParser constructs a Jenkins declarative pipeline Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format reports the format handled by this parser.
func (p *Parser) Format() pipeline.Format {
	return pipeline.FormatJenkins
}

// shellSteps carry their command as the script argument.
var shellSteps = map[string]struct{}{
	"sh":         {},
	"bat":        {},
	"powershell": {},
	"pwsh":       {},
}

// controlFlow lists Groovy statements that only scripted pipelines may use directly.
var controlFlow = map[string]struct{}{
	"if":      {},
	"else":    {},
	"for":     {},
	"while":   {},
	"try":     {},
	"catch":   {},
	"finally": {},
	"switch":  {},
	"def":     {},
}

// Parse reads a Jenkinsfile into a RawPipeline with one stage per
// declarative stage block.
func (p *Parser) Parse(content string) (provider.RawPipeline, error) {
	tokens, err := lex(content)
	if err != nil {
		return provider.RawPipeline{}, err
	}
	stmts, err := parseStatements(tokens)
	if err != nil {
		return provider.RawPipeline{}, err
	}

	var root *statement
	for _, s := range stmts {
		switch s.name {
		case "pipeline":
			if s.closure {
				root = s
			}
		case "node":
			if root == nil && s.closure {
				return provider.RawPipeline{}, pipeline.Unsupported("scripted pipeline (node block at line %d)", s.line)
			}
		}
	}
	if root == nil {
		return provider.RawPipeline{}, pipeline.Syntax(1, "no pipeline { ... } block found")
	}

	d := &declarative{raw: provider.RawPipeline{Format: pipeline.FormatJenkins}}
	stages := root.find("stages")
	if stages == nil || !stages.closure {
		return provider.RawPipeline{}, pipeline.Syntax(root.line, "pipeline has no stages block")
	}
	for _, s := range root.block {
		switch s.name {
		case "post":
			d.raw.Warn("", s.line, "post conditions are not modelled")
		case "matrix":
			return provider.RawPipeline{}, pipeline.Unsupported("matrix directive at line %d", s.line)
		}
	}
	if err := d.stages(stages, "", ""); err != nil {
		return provider.RawPipeline{}, err
	}
	return d.raw, nil
}

type declarative struct {
	raw provider.RawPipeline
}

func (d *declarative) stages(block *statement, prefix, inherited string) error {
	for _, s := range block.block {
		if s.name != "stage" {
			return pipeline.Syntax(s.line, "expected stage inside stages, found %q", s.text())
		}
		if err := d.stage(s, prefix, inherited); err != nil {
			return err
		}
	}
	return nil
}

func (d *declarative) stage(s *statement, prefix, inherited string) error {
	name, err := stageName(s)
	if err != nil {
		return err
	}
	full := prefix + name

	condition := joinConditions(inherited, whenCondition(s))
	if post := s.find("post"); post != nil {
		d.raw.Warn(full, post.line, "post conditions are not modelled")
	}
	if m := s.find("matrix"); m != nil {
		return pipeline.Unsupported("matrix directive at line %d", m.line)
	}

	if nested := s.find("stages"); nested != nil {
		jobs := len(d.raw.Jobs)
		if err := d.stages(nested, full+" / ", condition); err != nil {
			return err
		}
		if input := s.find("input"); input != nil {
			gateFirst(d.raw.Jobs[jobs:], input)
		}
		return nil
	}

	if parallel := s.find("parallel"); parallel != nil {
		d.raw.StageOrder = append(d.raw.StageOrder, full)
		slot := len(d.raw.StageOrder)
		input := s.find("input")
		for _, branch := range parallel.block {
			if branch.name != "stage" {
				return pipeline.Syntax(branch.line, "expected stage inside parallel, found %q", branch.text())
			}
			if branch.find("stages") != nil || branch.find("parallel") != nil {
				return pipeline.Unsupported("nested stages inside parallel branch at line %d", branch.line)
			}
			job, err := d.job(branch, full)
			if err != nil {
				return err
			}
			job.Group = full
			job.StageIndex = slot
			job.Condition = joinConditions(condition, job.Condition)
			if input != nil {
				job.Manual = true
				job.ApprovalMessage = inputMessage(input)
			}
			d.raw.Jobs = append(d.raw.Jobs, job)
		}
		return nil
	}

	d.raw.StageOrder = append(d.raw.StageOrder, full)
	job, err := d.job(s, full)
	if err != nil {
		return err
	}
	job.StageIndex = len(d.raw.StageOrder)
	job.ID = full
	job.Name = full
	job.Condition = condition
	d.raw.Jobs = append(d.raw.Jobs, job)
	return nil
}

// gateFirst puts the input of a stage with nested stages in front of the
// first nested stage that holds jobs.
func gateFirst(jobs []provider.RawJob, input *statement) {
	if len(jobs) == 0 {
		return
	}
	slot := jobs[0].StageIndex
	message := inputMessage(input)
	for i := range jobs {
		if jobs[i].StageIndex != slot {
			continue
		}
		jobs[i].Manual = true
		if message != "" {
			jobs[i].ApprovalMessage = message
		}
	}
}

// job converts a stage block with a steps section into a RawJob placed in stage.
func (d *declarative) job(s *statement, stage string) (provider.RawJob, error) {
	name, err := stageName(s)
	if err != nil {
		return provider.RawJob{}, err
	}
	job := provider.RawJob{
		ID:        name,
		Name:      name,
		Stage:     stage,
		Condition: whenCondition(s),
		Line:      s.line,
	}

	if input := s.find("input"); input != nil {
		job.Manual = true
		job.ApprovalMessage = inputMessage(input)
	}

	steps := s.find("steps")
	if steps == nil {
		return provider.RawJob{}, pipeline.Syntax(s.line, "stage %q has no steps, parallel or stages section", name)
	}
	collected, err := d.steps(&job, steps.block, false, false)
	if err != nil {
		return provider.RawJob{}, err
	}
	job.Steps = collected
	return job, nil
}

func (d *declarative) steps(job *provider.RawJob, block []*statement, inScript, tolerant bool) ([]provider.RawStep, error) {
	var out []provider.RawStep
	for _, s := range block {
		if _, ok := controlFlow[s.name]; ok || s.name == "" {
			if !inScript {
				if s.name == "" {
					return nil, pipeline.Unsupported("groovy expression %q in steps at line %d", s.text(), s.line)
				}
				return nil, pipeline.Unsupported("groovy %s statement in steps at line %d; wrap it in a script block", s.name, s.line)
			}
			if s.closure {
				nested, err := d.steps(job, s.block, true, tolerant)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
			}
			continue
		}

		switch {
		case isShell(s.name):
			out = append(out, shellStep(s, tolerant))
		case s.name == "input":
			job.Manual = true
			if job.ApprovalMessage == "" {
				job.ApprovalMessage = inputMessage(s)
			}
		case s.name == "script":
			d.raw.Warn(job.Name, s.line, "script block is not evaluated; only the steps inside it are listed")
			nested, err := d.steps(job, s.block, true, tolerant)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case s.closure:
			// Wrapper steps such as dir, withEnv, timeout or retry.
			wrapped := tolerant || s.name == "catchError" || s.name == "warnError"
			nested, err := d.steps(job, s.block, inScript, wrapped)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case inScript && isAssignment(s):
			continue
		default:
			out = append(out, provider.RawStep{
				Name:              s.name,
				Commands:          []string{s.text()},
				ContinueOnFailure: tolerant,
			})
		}
	}
	return out, nil
}

func isShell(name string) bool {
	_, ok := shellSteps[name]
	return ok
}

func shellStep(s *statement, tolerant bool) provider.RawStep {
	step := provider.RawStep{Name: s.name, ContinueOnFailure: tolerant}
	script, ok := s.named("script")
	if !ok {
		script, ok = s.positional()
	}
	if ok {
		step.Commands = []string{strings.TrimSpace(script.value())}
	}
	if label, ok := s.named("label"); ok && label.literal() {
		step.Name = label.value()
	}
	if rs, ok := s.named("returnStatus"); ok && rs.value() == "true" {
		step.ContinueOnFailure = true
	}
	return step
}

func isAssignment(s *statement) bool {
	for _, t := range s.rest {
		if t.kind == tokOperator && t.text == "=" {
			return true
		}
	}
	return false
}

func stageName(s *statement) (string, error) {
	arg, ok := s.positional()
	if !ok {
		if named, found := s.named("name"); found {
			arg, ok = named, true
		}
	}
	if !ok || strings.TrimSpace(arg.value()) == "" {
		return "", pipeline.Syntax(s.line, "stage requires a name")
	}
	if !s.closure {
		return "", pipeline.Syntax(s.line, "stage %q has no body", arg.value())
	}
	return arg.value(), nil
}

func whenCondition(s *statement) string {
	when := s.find("when")
	if when == nil {
		return ""
	}
	parts := make([]string, 0, len(when.block))
	for _, cond := range when.block {
		if cond.name == "beforeAgent" || cond.name == "beforeInput" || cond.name == "beforeOptions" {
			continue
		}
		parts = append(parts, conditionText(cond))
	}
	return strings.Join(parts, " && ")
}

func conditionText(s *statement) string {
	if !s.closure {
		return s.text()
	}
	inner := make([]string, 0, len(s.block))
	for _, child := range s.block {
		inner = append(inner, conditionText(child))
	}
	head := strings.TrimSuffix(s.text(), " {...}")
	return fmt.Sprintf("%s { %s }", head, strings.Join(inner, "; "))
}

func inputMessage(s *statement) string {
	if arg, ok := s.named("message"); ok {
		return arg.value()
	}
	if msg := s.find("message"); msg != nil {
		if arg, ok := msg.positional(); ok {
			return arg.value()
		}
	}
	if arg, ok := s.positional(); ok {
		return arg.value()
	}
	return ""
}

func joinConditions(conds ...string) string {
	var parts []string
	for _, c := range conds {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " && ")
}
