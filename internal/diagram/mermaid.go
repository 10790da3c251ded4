// Package diagram serializes pipeline graphs into text diagram descriptions.
package diagram

import (
	"strings"

	"github.com/bgricker/pipeviz/internal/graph"
)

// Kind names a supported diagram syntax.
type Kind string

const (
	KindMermaid Kind = "mermaid"
	KindDOT     Kind = "dot"
)

var mermaidEscaper = strings.NewReplacer(
	`"`, "#quot;",
	"\n", " ",
	"\r", "",
)

// Mermaid renders g as a Mermaid flowchart: the header, one declaration per
// node in emission order, then one line per edge in graph order.
func Mermaid(g *graph.Graph) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, n := range g.Nodes {
		b.WriteString("    ")
		b.WriteString(n.ID)
		open, close := mermaidShape(n.Kind)
		b.WriteString(open)
		b.WriteByte('"')
		b.WriteString(mermaidEscaper.Replace(n.Label))
		b.WriteByte('"')
		b.WriteString(close)
		b.WriteByte('\n')
	}
	for _, e := range g.Edges {
		b.WriteString("    ")
		b.WriteString(e.Source)
		b.WriteString(" -->")
		if e.Label != "" {
			b.WriteString(`|"`)
			b.WriteString(mermaidEscaper.Replace(e.Label))
			b.WriteString(`"|`)
		}
		b.WriteByte(' ')
		b.WriteString(e.Target)
		b.WriteByte('\n')
	}
	return b.String()
}

func mermaidShape(kind graph.NodeKind) (string, string) {
	switch kind {
	case graph.KindApproval:
		return "{", "}"
	case graph.KindTerminal:
		return "([", "])"
	default:
		return "[", "]"
	}
}
