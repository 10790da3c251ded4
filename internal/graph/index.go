package graph

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNodeNotFound is returned by Index.Lookup for ids the graph does not contain.
var ErrNodeNotFound = errors.New("node not found")

// NodeDetail is the human readable content behind a diagram node.
type NodeDetail struct {
	Name  string       `json:"name"`
	Kind  NodeKind     `json:"kind"`
	Steps []DetailStep `json:"steps"`
}

// DetailStep is one step of a NodeDetail.
type DetailStep struct {
	Name              string `json:"name"`
	Command           string `json:"command"`
	Condition         string `json:"condition,omitempty"`
	ContinueOnFailure bool   `json:"continue_on_failure,omitempty"`
}

// Index maps node ids to their details. It is built together with the Graph
// and is read-only afterwards.
type Index struct {
	ids     []string
	details map[string]NodeDetail
}

func newIndex(capacity int) *Index {
	return &Index{
		ids:     make([]string, 0, capacity),
		details: make(map[string]NodeDetail, capacity),
	}
}

func (x *Index) add(id string, detail NodeDetail) {
	x.ids = append(x.ids, id)
	x.details[id] = detail
}

// Lookup returns the detail for a node id.
func (x *Index) Lookup(id string) (NodeDetail, error) {
	detail, ok := x.details[id]
	if !ok {
		return NodeDetail{}, errors.Wrapf(ErrNodeNotFound, "id %q", id)
	}
	return detail, nil
}

// IDs lists node ids in emission order.
func (x *Index) IDs() []string {
	return append([]string(nil), x.ids...)
}

// Len reports the number of indexed nodes.
func (x *Index) Len() int {
	return len(x.ids)
}

// MarshalJSON encodes the index as an object keyed by node id.
func (x *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(x.details)
}
