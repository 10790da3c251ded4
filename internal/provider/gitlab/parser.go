package gitlab

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/provider"
)

// DefaultStages is the stage list GitLab uses when a config declares none.
var DefaultStages = []string{"build", "test", "deploy"}

const defaultStage = "test"

// reserved holds top-level keys that configure the pipeline rather than declare jobs.
var reserved = map[string]struct{}{
	"default":       {},
	"include":       {},
	"stages":        {},
	"variables":     {},
	"workflow":      {},
	"image":         {},
	"services":      {},
	"cache":         {},
	"before_script": {},
	"after_script":  {},
	"types":         {},
}

// Parser decodes .gitlab-ci.yml documents.
type Parser struct{}

// NewParser constructs a GitLab CI Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format reports the format handled by this parser.
func (p *Parser) Format() pipeline.Format {
	return pipeline.FormatGitLabCI
}

// Parse decodes a GitLab CI document into a RawPipeline.
func (p *Parser) Parse(content string) (provider.RawPipeline, error) {
	root, err := provider.DecodeYAML(content)
	if err != nil {
		return provider.RawPipeline{}, err
	}
	return decodeConfig(root)
}

func decodeConfig(root *yaml.Node) (provider.RawPipeline, error) {
	raw := provider.RawPipeline{Format: pipeline.FormatGitLabCI}

	entries := provider.Pairs(root)
	jobs := make(map[string]*yaml.Node, len(entries))
	var order []provider.Pair
	for _, entry := range entries {
		if _, ok := reserved[entry.Key]; ok {
			continue
		}
		isMapping := provider.Resolve(entry.Value).Kind == yaml.MappingNode
		if strings.HasPrefix(entry.Key, ".") {
			// Hidden keys are templates and may hold any value, e.g. a
			// script list reused through an anchor.
			if isMapping {
				jobs[entry.Key] = entry.Value
			}
			continue
		}
		if !isMapping {
			return provider.RawPipeline{}, pipeline.Syntax(entry.Line, "job %q must be a mapping", entry.Key)
		}
		jobs[entry.Key] = entry.Value
		order = append(order, entry)
	}

	raw.StageOrder = stageOrder(provider.Strings(provider.Lookup(root, "stages")))
	if include := provider.Lookup(root, "include"); include != nil {
		raw.Warn("", include.Line, "include is not resolved; only jobs declared in this file are shown")
	}
	if wf := provider.Lookup(root, "workflow"); wf != nil {
		raw.Name = provider.Scalar(provider.Lookup(wf, "name"))
	}

	defaults := provider.Lookup(root, "default")
	globalBefore := firstNonNil(provider.Lookup(defaults, "before_script"), provider.Lookup(root, "before_script"))
	globalAfter := firstNonNil(provider.Lookup(defaults, "after_script"), provider.Lookup(root, "after_script"))

	resolver := &extendsResolver{jobs: jobs}
	for _, entry := range order {
		job, err := decodeJob(&raw, resolver, entry, globalBefore, globalAfter)
		if err != nil {
			return provider.RawPipeline{}, err
		}
		raw.Jobs = append(raw.Jobs, job)
	}

	return raw, nil
}

func stageOrder(declared []string) []string {
	if len(declared) == 0 {
		declared = DefaultStages
	}
	out := make([]string, 0, len(declared)+2)
	if !contains(declared, ".pre") {
		out = append(out, ".pre")
	}
	out = append(out, declared...)
	if !contains(declared, ".post") {
		out = append(out, ".post")
	}
	return out
}

func decodeJob(raw *provider.RawPipeline, res *extendsResolver, entry provider.Pair, globalBefore, globalAfter *yaml.Node) (provider.RawJob, error) {
	name := entry.Key
	field := func(key string) (*yaml.Node, error) {
		return res.field(name, key, nil)
	}

	job := provider.RawJob{ID: name, Name: name, Stage: defaultStage, Line: entry.Line}

	stage, err := field("stage")
	if err != nil {
		return provider.RawJob{}, err
	}
	if s := provider.Scalar(stage); s != "" {
		job.Stage = s
	}

	steps, err := decodeSteps(res, name, globalBefore, globalAfter)
	if err != nil {
		return provider.RawJob{}, err
	}
	job.Steps = steps

	trigger, err := field("trigger")
	if err != nil {
		return provider.RawJob{}, err
	}
	if trigger != nil {
		job.Steps = append(job.Steps, provider.RawStep{
			Name:     "trigger",
			Commands: []string{"trigger: " + triggerTarget(trigger)},
		})
	}
	if len(job.Steps) == 0 {
		raw.Warn(name, entry.Line, "job has no script")
	}

	needs, err := field("needs")
	if err != nil {
		return provider.RawJob{}, err
	}
	job.Needs = needNames(needs)

	allow, err := field("allow_failure")
	if err != nil {
		return provider.RawJob{}, err
	}
	if allow != nil {
		v, ok := provider.Bool(allow)
		if !ok {
			// exit_codes form: failure is allowed for the listed codes.
			v = true
		}
		job.AllowFailure = &v
	}

	if err := decodeWhen(res, &job); err != nil {
		return provider.RawJob{}, err
	}

	parallel, err := field("parallel")
	if err != nil {
		return provider.RawJob{}, err
	}
	if parallel != nil {
		if n, convErr := strconv.Atoi(provider.Scalar(parallel)); convErr == nil && n > 1 {
			job.Parallel = n
		} else if provider.Lookup(parallel, "matrix") != nil {
			raw.Warn(name, parallel.Line, "parallel:matrix is not expanded")
		}
	}

	return job, nil
}

func decodeSteps(res *extendsResolver, name string, globalBefore, globalAfter *yaml.Node) ([]provider.RawStep, error) {
	var steps []provider.RawStep
	for _, section := range []string{"before_script", "script", "after_script"} {
		node, err := res.field(name, section, nil)
		if err != nil {
			return nil, err
		}
		if node == nil {
			switch section {
			case "before_script":
				node = globalBefore
			case "after_script":
				node = globalAfter
			}
		}
		if node == nil {
			continue
		}
		if err := rejectReference(node); err != nil {
			return nil, err
		}
		commands := provider.Strings(node)
		if len(commands) == 0 {
			continue
		}
		steps = append(steps, provider.RawStep{Name: section, Commands: commands})
	}
	return steps, nil
}

func decodeWhen(res *extendsResolver, job *provider.RawJob) error {
	when, err := res.field(job.ID, "when", nil)
	if err != nil {
		return err
	}
	if provider.Scalar(when) == "manual" {
		job.Manual = true
	}

	rules, err := res.field(job.ID, "rules", nil)
	if err != nil {
		return err
	}
	var conds []string
	if rules := provider.Resolve(rules); rules != nil && rules.Kind == yaml.SequenceNode {
		for _, rule := range rules.Content {
			ruleWhen := provider.Scalar(provider.Lookup(rule, "when"))
			if ruleWhen == "never" {
				continue
			}
			if ruleWhen == "manual" {
				job.Manual = true
				// A manual rule blocks the pipeline unless the rule or the
				// job allows failure.
				if v, ok := provider.Bool(provider.Lookup(rule, "allow_failure")); ok {
					job.AllowFailure = &v
				} else if job.AllowFailure == nil {
					blocking := false
					job.AllowFailure = &blocking
				}
			}
			if cond := provider.Scalar(provider.Lookup(rule, "if")); cond != "" {
				conds = append(conds, cond)
			}
		}
	}

	for _, key := range []string{"only", "except"} {
		node, err := res.field(job.ID, key, nil)
		if err != nil {
			return err
		}
		refs := provider.Strings(node)
		if node != nil && len(refs) == 0 {
			refs = provider.Strings(provider.Lookup(node, "refs"))
		}
		if len(refs) > 0 {
			conds = append(conds, key+": "+strings.Join(refs, ", "))
		}
	}

	job.Condition = strings.Join(conds, " || ")
	return nil
}

func needNames(node *yaml.Node) []string {
	node = provider.Resolve(node)
	if node == nil || node.Kind != yaml.SequenceNode {
		return provider.Strings(node)
	}
	var out []string
	for _, item := range node.Content {
		item = provider.Resolve(item)
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			// Cross-project and parent pipeline needs have no job in this file.
			if provider.Lookup(item, "pipeline") != nil || provider.Lookup(item, "project") != nil {
				continue
			}
			if name := provider.Scalar(provider.Lookup(item, "job")); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func triggerTarget(node *yaml.Node) string {
	if s := provider.Scalar(node); s != "" {
		return s
	}
	for _, key := range []string{"project", "include"} {
		if v := provider.Lookup(node, key); v != nil {
			if s := provider.Scalar(v); s != "" {
				return s
			}
			return key
		}
	}
	return "downstream pipeline"
}

func rejectReference(node *yaml.Node) error {
	node = provider.Resolve(node)
	if node == nil {
		return nil
	}
	if node.Tag == "!reference" {
		return pipeline.Unsupported("!reference tag at line %d", node.Line)
	}
	for _, child := range node.Content {
		if err := rejectReference(child); err != nil {
			return err
		}
	}
	return nil
}

// extendsResolver looks up job keywords through `extends` chains.
type extendsResolver struct {
	jobs map[string]*yaml.Node
}

func (r *extendsResolver) field(job, key string, visiting []string) (*yaml.Node, error) {
	if contains(visiting, job) {
		return nil, pipeline.Unsupported("cyclic extends chain %s", strings.Join(append(visiting, job), " -> "))
	}
	node, ok := r.jobs[job]
	if !ok {
		return nil, pipeline.Unsupported("extends references unknown job %q", job)
	}
	if v := provider.Lookup(node, key); v != nil {
		return v, nil
	}
	bases := provider.Strings(provider.Lookup(node, "extends"))
	visiting = append(visiting, job)
	// Later bases take precedence, matching GitLab's merge order.
	for i := len(bases) - 1; i >= 0; i-- {
		v, err := r.field(bases[i], key, visiting)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

func firstNonNil(nodes ...*yaml.Node) *yaml.Node {
	for _, n := range nodes {
		if n != nil {
			return n
		}
	}
	return nil
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
