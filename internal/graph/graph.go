// Package graph turns a normalized Pipeline into a directed graph of stage and
// job nodes, together with the node detail index used for lookups.
package graph

import (
	"sort"
	"strings"
	"unicode/utf8"

	dag "github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

// DefaultMaxNodes bounds graph size when Options.MaxNodes is zero.
const DefaultMaxNodes = 500

// maxLabelRunes bounds condition labels on edges.
const maxLabelRunes = 40

const (
	LabelApproved = "approved"
	LabelRejected = "rejected"
)

// NodeKind classifies graph nodes.
type NodeKind string

const (
	KindStage    NodeKind = "stage"
	KindJob      NodeKind = "job"
	KindApproval NodeKind = "approval"
	KindTerminal NodeKind = "terminal"
)

// Node is a vertex of the pipeline graph.
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"kind"`
	Stage string   `json:"stage"`
	Job   string   `json:"job,omitempty"`
}

// Edge is a directed, optionally labelled connection between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Graph holds nodes in emission order and edges sorted by source then target
// emission order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	order map[string]int
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.order[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Outgoing returns the edges leaving id.
func (g *Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Options tunes Build.
type Options struct {
	MaxNodes int
}

// Build derives the graph and node detail index from p. It fails with a
// GraphTooLargeError before allocating nodes when the pipeline would exceed
// the node cap.
func Build(p pipeline.Pipeline, opts Options) (*Graph, *Index, error) {
	limit := opts.MaxNodes
	if limit <= 0 {
		limit = DefaultMaxNodes
	}
	total := countNodes(p)
	if total > limit {
		return nil, nil, &pipeline.GraphTooLargeError{Nodes: total, Limit: limit}
	}

	b := &builder{
		graph: &Graph{
			Nodes: make([]Node, 0, total),
			order: make(map[string]int, total),
		},
		index: newIndex(total),
		dag:   dag.New(dag.StringHash, dag.Directed(), dag.PreventCycles()),
	}

	for _, st := range p.Stages {
		if err := b.addStage(st); err != nil {
			return nil, nil, err
		}
	}
	for i, st := range p.Stages {
		if err := b.connectStage(p, i, st); err != nil {
			return nil, nil, err
		}
	}

	order := b.graph.order
	sort.SliceStable(b.graph.Edges, func(i, j int) bool {
		ei, ej := b.graph.Edges[i], b.graph.Edges[j]
		if order[ei.Source] != order[ej.Source] {
			return order[ei.Source] < order[ej.Source]
		}
		return order[ei.Target] < order[ej.Target]
	})

	return b.graph, b.index, nil
}

func countNodes(p pipeline.Pipeline) int {
	n := 0
	for _, st := range p.Stages {
		n++
		if len(st.Jobs) > 1 {
			n += len(st.Jobs)
		}
	}
	return n
}

type builder struct {
	graph *Graph
	index *Index
	dag   dag.Graph[string, string]
}

func (b *builder) addNode(node Node, detail NodeDetail) error {
	if err := b.dag.AddVertex(node.ID); err != nil {
		return errors.Wrapf(err, "unable to add node %s", node.ID)
	}
	b.graph.order[node.ID] = len(b.graph.Nodes)
	b.graph.Nodes = append(b.graph.Nodes, node)
	b.index.add(node.ID, detail)
	return nil
}

func (b *builder) addEdge(source, target, label string) error {
	err := b.dag.AddEdge(source, target)
	if errors.Is(err, dag.ErrEdgeAlreadyExists) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", source, target)
	}
	b.graph.Edges = append(b.graph.Edges, Edge{Source: source, Target: target, Label: label})
	return nil
}

func (b *builder) addStage(st pipeline.Stage) error {
	stageNode := Node{
		ID:    StageID(st.Name),
		Label: st.Name,
		Kind:  stageKind(st.Kind),
		Stage: st.Name,
	}
	detail := NodeDetail{Name: st.Name, Kind: stageNode.Kind, Steps: []DetailStep{}}

	switch {
	case st.Kind == pipeline.StageApproval && st.Approval != nil:
		detail.Steps = append(detail.Steps, DetailStep{Name: "Wait for manual approval", Command: st.Approval.Message})
	case len(st.Jobs) == 1:
		stageNode.Job = st.Jobs[0].Name
		detail.Steps = jobSteps(st.Jobs[0], "")
	case len(st.Jobs) > 1:
		for _, job := range st.Jobs {
			detail.Steps = append(detail.Steps, jobSteps(job, job.Name+" / ")...)
		}
	}
	if err := b.addNode(stageNode, detail); err != nil {
		return err
	}

	if len(st.Jobs) < 2 {
		return nil
	}
	for _, job := range st.Jobs {
		node := Node{
			ID:    JobID(st.Name, job.Name),
			Label: job.Name,
			Kind:  KindJob,
			Stage: st.Name,
			Job:   job.Name,
		}
		if err := b.addNode(node, NodeDetail{Name: job.Name, Kind: KindJob, Steps: jobSteps(job, "")}); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) connectStage(p pipeline.Pipeline, i int, st pipeline.Stage) error {
	id := StageID(st.Name)
	switch st.Kind {
	case pipeline.StageTerminal:
		return nil
	case pipeline.StageApproval:
		if st.Approval == nil {
			return errors.Errorf("approval stage %q has no successors", st.Name)
		}
		if err := b.addEdge(id, StageID(st.Approval.Approved), LabelApproved); err != nil {
			return err
		}
		return b.addEdge(id, StageID(st.Approval.Rejected), LabelRejected)
	}

	exits := []string{id}
	if len(st.Jobs) > 1 {
		exits = exits[:0]
		for _, job := range st.Jobs {
			jobID := JobID(st.Name, job.Name)
			if err := b.addEdge(id, jobID, ""); err != nil {
				return err
			}
			exits = append(exits, jobID)
		}
	}

	next, ok := nextStage(p, i)
	if !ok {
		return nil
	}
	label := ""
	if next.Trigger != nil {
		label = truncate(next.Trigger.Condition)
	}
	for _, exit := range exits {
		if err := b.addEdge(exit, StageID(next.Name), label); err != nil {
			return err
		}
	}
	return nil
}

// nextStage returns the first non-terminal stage after index i.
func nextStage(p pipeline.Pipeline, i int) (pipeline.Stage, bool) {
	for _, st := range p.Stages[i+1:] {
		if st.Kind != pipeline.StageTerminal {
			return st, true
		}
	}
	return pipeline.Stage{}, false
}

func stageKind(kind pipeline.StageKind) NodeKind {
	switch kind {
	case pipeline.StageApproval:
		return KindApproval
	case pipeline.StageTerminal:
		return KindTerminal
	default:
		return KindStage
	}
}

func jobSteps(job pipeline.Job, prefix string) []DetailStep {
	out := make([]DetailStep, 0, len(job.Steps))
	for _, step := range job.Steps {
		out = append(out, DetailStep{
			Name:              prefix + step.Name,
			Command:           strings.Join(step.Commands, "\n"),
			Condition:         step.Condition,
			ContinueOnFailure: step.ContinueOnFailure,
		})
	}
	return out
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxLabelRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLabelRunes-1]) + "…"
}
