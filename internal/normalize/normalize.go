// Package normalize reconciles the format-specific RawPipeline produced by a
// parser driver into the canonical pipeline model.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/provider"
)

// MaxMatrixVariants bounds matrix and parallel expansion per job.
const MaxMatrixVariants = 256

// Normalize converts raw into a Pipeline. It fails with a NormalizationError
// when job dependencies are unknown or cyclic.
func Normalize(raw provider.RawPipeline) (pipeline.Pipeline, error) {
	n := &normalizer{raw: raw, warnings: append([]pipeline.Warning(nil), raw.Warnings...)}

	order, err := n.dependencyOrder()
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	var groups []jobGroup
	if len(raw.StageOrder) == 0 {
		groups = n.layerByNeeds(order)
	} else {
		groups, err = n.groupByStage()
		if err != nil {
			return pipeline.Pipeline{}, err
		}
	}

	stages := n.buildStages(groups)
	return pipeline.Pipeline{
		Format:   raw.Format,
		Name:     raw.Name,
		Stages:   stages,
		Warnings: n.warnings,
	}, nil
}

type normalizer struct {
	raw      provider.RawPipeline
	warnings []pipeline.Warning
}

// jobGroup is a stage before approval gates and name deduplication are applied.
type jobGroup struct {
	name string
	jobs []provider.RawJob
}

// dependencyOrder validates Needs and returns job IDs in a stable topological order.
func (n *normalizer) dependencyOrder() ([]string, error) {
	index := make(map[string]int, len(n.raw.Jobs))
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for i, job := range n.raw.Jobs {
		if _, ok := index[job.ID]; ok {
			continue
		}
		index[job.ID] = i
		if err := g.AddVertex(job.ID); err != nil {
			return nil, fmt.Errorf("add job %q: %w", job.ID, err)
		}
	}

	for _, job := range n.raw.Jobs {
		for _, need := range job.Needs {
			if need == job.ID {
				return nil, pipeline.Normalization("job %q needs itself", job.ID)
			}
			if _, ok := index[need]; !ok {
				return nil, pipeline.Normalization("job %q needs unknown job %q", job.ID, need)
			}
			err := g.AddEdge(need, job.ID)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, pipeline.Normalization("cyclic job dependencies: %q needs %q", job.ID, need)
			default:
				return nil, fmt.Errorf("add dependency %q -> %q: %w", need, job.ID, err)
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return index[a] < index[b]
	})
	if err != nil {
		return nil, pipeline.Normalization("order jobs: %v", err)
	}
	return order, nil
}

// layerByNeeds groups jobs by the length of their longest needs chain.
func (n *normalizer) layerByNeeds(order []string) []jobGroup {
	byID := make(map[string]provider.RawJob, len(n.raw.Jobs))
	for _, job := range n.raw.Jobs {
		byID[job.ID] = job
	}

	level := make(map[string]int, len(order))
	maxLevel := -1
	for _, id := range order {
		l := 0
		for _, need := range byID[id].Needs {
			if level[need]+1 > l {
				l = level[need] + 1
			}
		}
		level[id] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	groups := make([]jobGroup, maxLevel+1)
	for _, job := range n.raw.Jobs {
		l := level[job.ID]
		groups[l].jobs = append(groups[l].jobs, job)
	}
	for i := range groups {
		names := make([]string, 0, len(groups[i].jobs))
		for _, job := range groups[i].jobs {
			names = append(names, job.Name)
		}
		groups[i].name = strings.Join(names, ", ")
	}
	return groups
}

// groupByStage places jobs into their declared stages, dropping empty stages.
// A stage name declared more than once yields one stage per occurrence.
func (n *normalizer) groupByStage() ([]jobGroup, error) {
	position := make(map[string]int, len(n.raw.StageOrder))
	for i, name := range n.raw.StageOrder {
		if _, ok := position[name]; !ok {
			position[name] = i
		}
	}

	jobStage := make(map[string]int, len(n.raw.Jobs))
	buckets := make([][]provider.RawJob, len(n.raw.StageOrder))
	for _, job := range n.raw.Jobs {
		pos, ok := position[job.Stage]
		if job.StageIndex > 0 {
			pos, ok = job.StageIndex-1, job.StageIndex <= len(n.raw.StageOrder)
		}
		if !ok {
			return nil, pipeline.Normalization("job %q uses undeclared stage %q", job.ID, job.Stage)
		}
		buckets[pos] = append(buckets[pos], job)
		jobStage[job.ID] = pos
	}

	for _, job := range n.raw.Jobs {
		for _, need := range job.Needs {
			if jobStage[need] > jobStage[job.ID] {
				return nil, pipeline.Normalization("job %q needs %q from a later stage", job.ID, need)
			}
		}
	}

	var groups []jobGroup
	for i, name := range n.raw.StageOrder {
		if len(buckets[i]) == 0 {
			continue
		}
		groups = append(groups, jobGroup{name: name, jobs: buckets[i]})
	}
	return groups, nil
}

// gate records an approval gate to insert before the stage at index.
type gate struct {
	message  string
	blocking bool
}

func (n *normalizer) buildStages(groups []jobGroup) []pipeline.Stage {
	used := make(map[string]bool)
	stages := make([]pipeline.Stage, 0, len(groups))
	gates := make(map[int]gate)

	for _, group := range groups {
		st := pipeline.Stage{
			Name: uniqueName(used, group.name),
			Kind: pipeline.StageNormal,
		}
		st.Jobs = n.buildJobs(group.jobs)
		liftCondition(&st)

		var manual []string
		g := gate{}
		for _, job := range group.jobs {
			if !job.Manual {
				continue
			}
			manual = append(manual, job.Name)
			if g.message == "" {
				g.message = job.ApprovalMessage
			}
			if n.raw.Format == pipeline.FormatJenkins || (job.AllowFailure != nil && !*job.AllowFailure) {
				g.blocking = true
			}
		}
		if len(manual) > 0 {
			if g.message == "" {
				g.message = "Manual job: " + strings.Join(manual, ", ")
			}
			if st.Trigger == nil {
				st.Trigger = &pipeline.Trigger{}
			}
			st.Trigger.Manual = true
			gates[len(stages)] = g
		}
		stages = append(stages, st)
	}

	if len(gates) == 0 {
		return stages
	}

	out := make([]pipeline.Stage, 0, len(stages)+2*len(gates))
	var gateIdx []int
	for i, st := range stages {
		if g, ok := gates[i]; ok {
			gateIdx = append(gateIdx, len(out))
			out = append(out, pipeline.Stage{
				Name:     uniqueName(used, "Approve "+st.Name),
				Kind:     pipeline.StageApproval,
				Approval: &pipeline.Approval{Message: g.message, Approved: st.Name},
				Trigger:  &pipeline.Trigger{Manual: true},
			})
		}
		out = append(out, st)
	}

	var terminals []pipeline.Stage
	for _, idx := range gateIdx {
		gated := out[idx+1]
		approval := out[idx].Approval
		if !gates[indexOf(stages, gated.Name)].blocking && idx+2 < len(out) {
			approval.Rejected = out[idx+2].Name
			continue
		}
		terminal := pipeline.Stage{
			Name: uniqueName(used, gated.Name+" rejected"),
			Kind: pipeline.StageTerminal,
		}
		approval.Rejected = terminal.Name
		terminals = append(terminals, terminal)
	}

	return append(out, terminals...)
}

// buildJobs expands matrix jobs, deduplicates names and links parallel siblings.
func (n *normalizer) buildJobs(raw []provider.RawJob) []pipeline.Job {
	used := make(map[string]bool)
	var jobs []pipeline.Job
	for _, rj := range raw {
		for _, variant := range n.expand(rj) {
			job := pipeline.Job{
				Name:      uniqueName(used, variant),
				ID:        rj.ID,
				Condition: rj.Condition,
				Steps:     convertSteps(rj.Steps),
			}
			jobs = append(jobs, job)
		}
	}
	if len(jobs) > 1 {
		for i := range jobs {
			for j := range jobs {
				if i != j {
					jobs[i].ParallelWith = append(jobs[i].ParallelWith, jobs[j].Name)
				}
			}
		}
	}
	return jobs
}

// expand returns the job names a raw job produces once matrix and parallel
// keywords are applied.
func (n *normalizer) expand(job provider.RawJob) []string {
	if job.Parallel > 1 {
		if job.Parallel > MaxMatrixVariants {
			n.warn(job, fmt.Sprintf("parallel: %d exceeds %d variants and is not expanded", job.Parallel, MaxMatrixVariants))
			return []string{job.Name}
		}
		out := make([]string, 0, job.Parallel)
		for i := 1; i <= job.Parallel; i++ {
			out = append(out, fmt.Sprintf("%s %d/%d", job.Name, i, job.Parallel))
		}
		return out
	}
	if len(job.Matrix) == 0 {
		return []string{job.Name}
	}

	total := 1
	for _, axis := range job.Matrix {
		total *= len(axis.Values)
		if total > MaxMatrixVariants {
			n.warn(job, fmt.Sprintf("matrix exceeds %d variants and is not expanded", MaxMatrixVariants))
			return []string{job.Name}
		}
	}

	combos := [][]string{nil}
	for _, axis := range job.Matrix {
		next := make([][]string, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, v := range axis.Values {
				c := append(append([]string(nil), combo...), axis.Name+"="+v)
				next = append(next, c)
			}
		}
		combos = next
	}
	out := make([]string, 0, len(combos))
	for _, combo := range combos {
		out = append(out, fmt.Sprintf("%s (%s)", job.Name, strings.Join(combo, ", ")))
	}
	return out
}

func (n *normalizer) warn(job provider.RawJob, message string) {
	n.warnings = append(n.warnings, pipeline.Warning{Job: job.ID, Line: job.Line, Message: message})
}

// liftCondition moves a condition shared by every job onto the stage trigger.
func liftCondition(st *pipeline.Stage) {
	if len(st.Jobs) == 0 || st.Jobs[0].Condition == "" {
		return
	}
	cond := st.Jobs[0].Condition
	for _, job := range st.Jobs[1:] {
		if job.Condition != cond {
			return
		}
	}
	for i := range st.Jobs {
		st.Jobs[i].Condition = ""
	}
	st.Trigger = &pipeline.Trigger{Condition: cond}
}

func convertSteps(raw []provider.RawStep) []pipeline.Step {
	steps := make([]pipeline.Step, 0, len(raw))
	for _, rs := range raw {
		steps = append(steps, pipeline.Step{
			Name:              rs.Name,
			Commands:          append([]string{}, rs.Commands...),
			Condition:         rs.Condition,
			ContinueOnFailure: rs.ContinueOnFailure,
		})
	}
	return steps
}

// uniqueName returns name, or name with a numeric suffix when name is already taken.
func uniqueName(used map[string]bool, name string) string {
	if !used[name] {
		used[name] = true
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", name, i)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

func indexOf(stages []pipeline.Stage, name string) int {
	for i, st := range stages {
		if st.Name == name {
			return i
		}
	}
	return -1
}
