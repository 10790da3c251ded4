package diagram

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/bgricker/pipeviz/internal/graph"
)

// ErrUnknownKind is returned by Render for kinds other than mermaid and dot.
var ErrUnknownKind = errors.New("unknown diagram kind")

//nolint:lll // this is a template
const dotTemplate = `digraph {{quote .Name}} {
	rankdir="TB";
	node [fontname="Helvetica"];
{{- range .Nodes}}
	{{quote .ID}} [label={{quote .Label}}, shape="{{shape .Kind}}"];
{{- end}}
{{- range .Edges}}
	{{quote .Source}} -> {{quote .Target}}{{if .Label}} [label={{quote .Label}}]{{end}};
{{- end}}
}
`

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

var dotTpl = template.Must(template.New("dot").Funcs(template.FuncMap{
	"quote": func(s string) string { return `"` + dotEscaper.Replace(s) + `"` },
	"shape": dotShape,
}).Parse(dotTemplate))

type dotDescription struct {
	Name  string
	Nodes []graph.Node
	Edges []graph.Edge
}

// DOT renders g as a Graphviz digraph with the same node and edge order as Mermaid.
func DOT(g *graph.Graph, name string) (string, error) {
	if name == "" {
		name = "pipeline"
	}
	var b strings.Builder
	err := dotTpl.Execute(&b, dotDescription{Name: name, Nodes: g.Nodes, Edges: g.Edges})
	if err != nil {
		return "", errors.Wrap(err, "unable to execute dot template")
	}
	return b.String(), nil
}

func dotShape(kind graph.NodeKind) string {
	switch kind {
	case graph.KindApproval:
		return "diamond"
	case graph.KindTerminal:
		return "oval"
	default:
		return "box"
	}
}

// Render dispatches on kind.
func Render(kind Kind, g *graph.Graph, name string) (string, error) {
	switch kind {
	case KindMermaid, "":
		return Mermaid(g), nil
	case KindDOT:
		return DOT(g, name)
	default:
		return "", errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
}
