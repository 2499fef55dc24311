package config

import (
	"encoding/json"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Pair is one key/value entry of a YAML mapping.
type Pair struct {
	Key   string
	KeyAt *yaml.Node
	Value *yaml.Node
}

// Deref follows alias nodes to the node they point at.
func Deref(n *yaml.Node) *yaml.Node {
	for i := 0; n != nil && n.Kind == yaml.AliasNode && i < 32; i++ {
		n = n.Alias
	}
	return n
}

// Pairs returns the entries of a mapping node in document order.
// Merge keys ("<<") are expanded; explicit keys win over merged ones.
// A merge that leads back to a mapping already being expanded is skipped;
// CheckMerges reports such documents. Non-mapping nodes yield nil.
func Pairs(n *yaml.Node) []Pair {
	return pairs(n, nil)
}

func pairs(n *yaml.Node, expanding map[*yaml.Node]bool) []Pair {
	n = Deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	var explicit, merged []Pair
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if isMergeKey(k) {
			if expanding == nil {
				expanding = make(map[*yaml.Node]bool)
			}
			if !expanding[n] {
				expanding[n] = true
				defer delete(expanding, n)
			}
			for _, src := range mergeSources(v) {
				if !expanding[src] {
					merged = append(merged, pairs(src, expanding)...)
				}
			}
			continue
		}
		seen[k.Value] = true
		explicit = append(explicit, Pair{Key: k.Value, KeyAt: k, Value: v})
	}
	for _, p := range merged {
		if !seen[p.Key] {
			seen[p.Key] = true
			explicit = append(explicit, p)
		}
	}
	return explicit
}

func isMergeKey(k *yaml.Node) bool {
	return k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge"
}

// mergeSources returns the mappings a merge value refers to.
func mergeSources(v *yaml.Node) []*yaml.Node {
	v = Deref(v)
	if v == nil {
		return nil
	}
	if v.Kind == yaml.SequenceNode {
		out := make([]*yaml.Node, 0, len(v.Content))
		for _, item := range v.Content {
			if item = Deref(item); item != nil && item.Kind == yaml.MappingNode {
				out = append(out, item)
			}
		}
		return out
	}
	if v.Kind == yaml.MappingNode {
		return []*yaml.Node{v}
	}
	return nil
}

// CheckMerges fails when a merge key in the document expands, directly or
// through other merges, into the mapping that holds it.
func CheckMerges(path string, doc *yaml.Node) error {
	done := make(map[*yaml.Node]bool)
	var walk func(n *yaml.Node) *yaml.Node
	walk = func(n *yaml.Node) *yaml.Node {
		// aliases point at nodes that are walked where they are defined
		if n == nil || n.Kind == yaml.AliasNode {
			return nil
		}
		if n.Kind == yaml.MappingNode {
			if k := mergeCycle(n, map[*yaml.Node]bool{}, done); k != nil {
				return k
			}
		}
		for _, c := range n.Content {
			if k := walk(c); k != nil {
				return k
			}
		}
		return nil
	}
	if k := walk(doc); k != nil {
		return &core.ParseError{
			Path:    path,
			Line:    k.Line,
			Column:  k.Column,
			Message: "merge key expands into its own mapping",
		}
	}
	return nil
}

// mergeCycle returns the merge key through which m reaches a mapping on stack.
func mergeCycle(m *yaml.Node, stack, done map[*yaml.Node]bool) *yaml.Node {
	if done[m] {
		return nil
	}
	stack[m] = true
	defer delete(stack, m)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		if !isMergeKey(k) {
			continue
		}
		for _, src := range mergeSources(m.Content[i+1]) {
			if stack[src] {
				return k
			}
			if found := mergeCycle(src, stack, done); found != nil {
				return found
			}
		}
	}
	done[m] = true
	return nil
}

// Lookup returns the value of key in a mapping node.
func Lookup(n *yaml.Node, key string) *yaml.Node {
	for _, p := range Pairs(n) {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// IsScalar reports whether n (after alias resolution) is a scalar.
func IsScalar(n *yaml.Node) bool {
	n = Deref(n)
	return n != nil && n.Kind == yaml.ScalarNode
}

// IsNull reports whether n is absent or an explicit null.
func IsNull(n *yaml.Node) bool {
	n = Deref(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

// String renders a node as a string. Scalars are returned verbatim,
// collections as compact JSON.
func String(n *yaml.Node) string {
	n = Deref(n)
	switch {
	case IsNull(n):
		return ""
	case n.Kind == yaml.ScalarNode:
		return n.Value
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Strings accepts a scalar or a sequence of scalars.
// The second result is false when the node has any other shape.
func Strings(n *yaml.Node) ([]string, bool) {
	n = Deref(n)
	switch {
	case IsNull(n):
		return nil, true
	case n.Kind == yaml.ScalarNode:
		return []string{n.Value}, true
	case n.Kind == yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if !IsScalar(item) {
				return nil, false
			}
			out = append(out, Deref(item).Value)
		}
		return out, true
	}
	return nil, false
}

// StringMap flattens a mapping into key → stringified value.
func StringMap(n *yaml.Node) (map[string]string, bool) {
	n = Deref(n)
	if IsNull(n) {
		return nil, true
	}
	if n.Kind != yaml.MappingNode {
		return nil, false
	}
	out := make(map[string]string)
	for _, p := range Pairs(n) {
		out[p.Key] = String(p.Value)
	}
	return out, true
}

// FlattenMap flattens nested mappings into dotted keys.
func FlattenMap(n *yaml.Node) map[string]string {
	out := make(map[string]string)
	var walk func(prefix string, n *yaml.Node, depth int)
	walk = func(prefix string, n *yaml.Node, depth int) {
		n = Deref(n)
		if n != nil && n.Kind == yaml.MappingNode && depth < 16 {
			for _, p := range Pairs(n) {
				key := p.Key
				if prefix != "" {
					key = prefix + "." + p.Key
				}
				walk(key, p.Value, depth+1)
			}
			return
		}
		if prefix != "" {
			out[prefix] = String(n)
		}
	}
	walk("", n, 0)
	return out
}

// NormalizeSet trims, drops empties, de-duplicates case-insensitively
// (first spelling wins) and sorts.
func NormalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
