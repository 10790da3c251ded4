package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

// Pattern represents a compiled filter condition supporting substring and regex matching.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	lower string
}

// Compile transforms raw pattern strings into Pattern values.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			expr := raw[1 : len(raw)-1]
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

// Match reports whether the pattern matches the supplied string.
func (p Pattern) Match(s string) bool {
	if s == "" {
		return false
	}
	if p.regex != nil {
		return p.regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.lower)
}

func (p Pattern) String() string { return p.raw }

// Criteria selects the jobs and steps kept by Apply.
type Criteria struct {
	Jobs      []Pattern
	OnlySteps []Pattern
	SkipSteps []Pattern
}

// CompileCriteria compiles the three pattern lists.
func CompileCriteria(jobs, only, skip []string) (Criteria, error) {
	var (
		c   Criteria
		err error
	)
	if c.Jobs, err = Compile(jobs); err != nil {
		return Criteria{}, fmt.Errorf("job filter: %w", err)
	}
	if c.OnlySteps, err = Compile(only); err != nil {
		return Criteria{}, fmt.Errorf("only-step filter: %w", err)
	}
	if c.SkipSteps, err = Compile(skip); err != nil {
		return Criteria{}, fmt.Errorf("skip-step filter: %w", err)
	}
	return c, nil
}

// Empty reports whether the criteria keep everything.
func (c Criteria) Empty() bool {
	return len(c.Jobs) == 0 && len(c.OnlySteps) == 0 && len(c.SkipSteps) == 0
}

// Apply returns a copy of p holding only the jobs and steps selected by c.
// Stages left without jobs are dropped. An approval gate survives only while
// the stage it guards does; a rejected branch pointing at a dropped stage is
// moved to the next surviving stage, or to a terminal stage when none follows.
func Apply(p pipeline.Pipeline, c Criteria) pipeline.Pipeline {
	if c.Empty() {
		return p
	}

	kept := make(map[string]bool, len(p.Stages))
	normal := make([]pipeline.Stage, len(p.Stages))
	for i, st := range p.Stages {
		if st.Kind != pipeline.StageNormal {
			continue
		}
		jobs := filterJobs(st.Jobs, c)
		if len(jobs) == 0 {
			continue
		}
		st.Jobs = jobs
		normal[i] = st
		kept[st.Name] = true
	}

	out := p
	out.Stages = make([]pipeline.Stage, 0, len(p.Stages))
	terminals := make(map[string]bool)
	for i, st := range p.Stages {
		switch st.Kind {
		case pipeline.StageNormal:
			if kept[st.Name] {
				out.Stages = append(out.Stages, normal[i])
			}
		case pipeline.StageApproval:
			if st.Approval == nil || !kept[st.Approval.Approved] {
				continue
			}
			approval := *st.Approval
			if !kept[approval.Rejected] && !isTerminal(p, approval.Rejected) {
				approval.Rejected = survivorAfter(p, kept, approval.Approved)
			}
			if approval.Rejected == "" {
				approval.Rejected = approval.Approved + " rejected"
			}
			if !kept[approval.Rejected] {
				terminals[approval.Rejected] = true
			}
			st.Approval = &approval
			out.Stages = append(out.Stages, st)
		}
	}

	for name := range terminals {
		if kept[name] {
			continue
		}
		out.Stages = append(out.Stages, terminalStage(p, name))
	}
	sortTerminals(out.Stages, p)
	return out
}

func filterJobs(jobs []pipeline.Job, c Criteria) []pipeline.Job {
	result := make([]pipeline.Job, 0, len(jobs))
	for _, job := range jobs {
		if len(c.Jobs) > 0 && !matchesJob(job, c.Jobs) {
			continue
		}
		steps := filterSteps(job.Steps, c.OnlySteps, c.SkipSteps)
		if len(steps) == 0 && len(job.Steps) > 0 {
			continue
		}
		job.Steps = steps
		result = append(result, job)
	}
	return result
}

func matchesJob(job pipeline.Job, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.Match(job.Name) || pattern.Match(job.ID) {
			return true
		}
	}
	return false
}

func filterSteps(steps []pipeline.Step, onlyPatterns, skipPatterns []Pattern) []pipeline.Step {
	result := make([]pipeline.Step, 0, len(steps))
	for _, step := range steps {
		if len(onlyPatterns) > 0 && !matchesStep(step, onlyPatterns) {
			continue
		}
		if len(skipPatterns) > 0 && matchesStep(step, skipPatterns) {
			continue
		}
		result = append(result, step)
	}
	return result
}

func matchesStep(step pipeline.Step, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.Match(step.Name) {
			return true
		}
		for _, cmd := range step.Commands {
			if pattern.Match(cmd) {
				return true
			}
		}
	}
	return false
}

// survivorAfter returns the first kept stage following name in p.
func survivorAfter(p pipeline.Pipeline, kept map[string]bool, name string) string {
	seen := false
	for _, st := range p.Stages {
		if st.Name == name {
			seen = true
			continue
		}
		if seen && kept[st.Name] {
			return st.Name
		}
	}
	return ""
}

func isTerminal(p pipeline.Pipeline, name string) bool {
	st, ok := p.Stage(name)
	return ok && st.Kind == pipeline.StageTerminal
}

func terminalStage(p pipeline.Pipeline, name string) pipeline.Stage {
	if st, ok := p.Stage(name); ok && st.Kind == pipeline.StageTerminal {
		return st
	}
	return pipeline.Stage{Name: name, Kind: pipeline.StageTerminal, Jobs: []pipeline.Job{}}
}

// sortTerminals moves terminal stages to the end, ordered by their original
// position and then by name for stages created here.
func sortTerminals(stages []pipeline.Stage, p pipeline.Pipeline) {
	pos := make(map[string]int, len(p.Stages))
	for i, st := range p.Stages {
		pos[st.Name] = i
	}
	first := len(stages)
	for i, st := range stages {
		if st.Kind == pipeline.StageTerminal {
			first = i
			break
		}
	}
	tail := stages[first:]
	for i := 1; i < len(tail); i++ {
		for j := i; j > 0 && terminalLess(tail[j], tail[j-1], pos); j-- {
			tail[j], tail[j-1] = tail[j-1], tail[j]
		}
	}
}

func terminalLess(a, b pipeline.Stage, pos map[string]int) bool {
	pa, oka := pos[a.Name]
	pb, okb := pos[b.Name]
	switch {
	case oka && okb:
		return pa < pb
	case oka != okb:
		return oka
	default:
		return a.Name < b.Name
	}
}
