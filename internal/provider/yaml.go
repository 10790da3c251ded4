package provider

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

var (
	yamlLineRegex   = regexp.MustCompile(`line (\d+)`)
	yamlAnchorRegex = regexp.MustCompile(`unknown anchor '([^']*)' referenced`)
)

// DecodeYAML parses content into its root mapping node, translating yaml.v3
// failures into SyntaxError and UnsupportedFeatureError values.
func DecodeYAML(content string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, translateYAMLError(err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, pipeline.Syntax(1, "document is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, pipeline.Syntax(root.Line, "top-level value must be a mapping")
	}
	return root, nil
}

func translateYAMLError(err error) error {
	msg := err.Error()
	if m := yamlAnchorRegex.FindStringSubmatch(msg); m != nil {
		return pipeline.Unsupported("yaml alias to undefined anchor %q", m[1])
	}
	line := 0
	if m := yamlLineRegex.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	msg = strings.TrimPrefix(msg, "yaml: ")
	if line > 0 {
		msg = strings.TrimPrefix(msg, "line "+strconv.Itoa(line)+": ")
	}
	return &pipeline.SyntaxError{Line: line, Message: msg}
}

// Pair is a key/value entry of a YAML mapping.
type Pair struct {
	Key   string
	Line  int
	Value *yaml.Node
}

// Pairs returns the entries of a mapping node in source order, following
// aliases. Merge keys contribute only the keys the mapping does not set
// itself; with a list of merged mappings the earlier mapping wins.
func Pairs(node *yaml.Node) []Pair {
	node = Resolve(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	explicit := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		if k := node.Content[i]; k.Tag != "!!merge" {
			explicit[k.Value] = true
		}
	}

	merged := make(map[string]bool)
	out := make([]Pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		if k.Tag != "!!merge" {
			out = append(out, Pair{Key: k.Value, Line: k.Line, Value: node.Content[i+1]})
			continue
		}
		for _, p := range mergeSources(node.Content[i+1]) {
			if explicit[p.Key] || merged[p.Key] {
				continue
			}
			merged[p.Key] = true
			out = append(out, p)
		}
	}
	return out
}

func mergeSources(value *yaml.Node) []Pair {
	value = Resolve(value)
	if value == nil || value.Kind != yaml.SequenceNode {
		return Pairs(value)
	}
	var out []Pair
	for _, item := range value.Content {
		out = append(out, Pairs(item)...)
	}
	return out
}

// Lookup returns the value for key in a mapping node, or nil.
func Lookup(node *yaml.Node, key string) *yaml.Node {
	for _, p := range Pairs(node) {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// Resolve follows alias nodes.
func Resolve(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

// Scalar returns the string value of a scalar node, or "".
func Scalar(node *yaml.Node) string {
	node = Resolve(node)
	if node == nil || node.Kind != yaml.ScalarNode {
		return ""
	}
	return node.Value
}

// Strings flattens a scalar or (nested) sequence of scalars into a list,
// preserving order. Nested sequences are produced by YAML aliases to lists.
func Strings(node *yaml.Node) []string {
	node = Resolve(node)
	if node == nil {
		return nil
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		return []string{node.Value}
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			out = append(out, Strings(item)...)
		}
		return out
	default:
		return nil
	}
}

// Bool interprets a scalar node as a YAML boolean.
func Bool(node *yaml.Node) (bool, bool) {
	node = Resolve(node)
	if node == nil || node.Kind != yaml.ScalarNode {
		return false, false
	}
	var v bool
	if err := node.Decode(&v); err != nil {
		return false, false
	}
	return v, true
}

// DecodeNode decodes node into out, translating yaml.v3 failures like DecodeYAML.
func DecodeNode(node *yaml.Node, out interface{}) error {
	if err := node.Decode(out); err != nil {
		return translateYAMLError(err)
	}
	return nil
}
