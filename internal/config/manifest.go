// Package config resolves the hierarchical dbt project configuration.
//
// The project manifest (dbt_project.yml) carries a "models:" tree whose
// nested keys mirror the model directory layout. Keys prefixed with "+" (or
// bare keys naming a known config field) are configuration; other mapping
// keys descend one path level. The tree is flattened into Nodes keyed by
// dotted path and resolved per model path by Resolver.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// DefaultModelPaths is used when the manifest does not declare model-paths.
var DefaultModelPaths = []string{"models"}

// maxTreeDepth bounds the models tree; deeper trees are reported, not walked.
const maxTreeDepth = 64

// Node is a configuration fragment attached to one position in the models tree.
type Node struct {
	// Path is the dotted path; the root of the models tree is ""
	Path   string               `json:"path"`
	Line   int                  `json:"line,omitempty"`
	Config core.ConfigOverrides `json:"config"`
}

// Manifest is the parsed project manifest.
type Manifest struct {
	Path       string
	Name       string
	Version    string
	Profile    string
	ModelPaths []string
	// Vars is flattened to dotted keys
	Vars  map[string]string
	Nodes map[string]*Node
}

// ParseManifest parses dbt_project.yml content.
// Unreadable YAML, including a self-referencing merge key, yields
// *core.ParseError; a cyclic or contradictory models
// tree yields *core.ConfigError.
func ParseManifest(path string, content []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, NewParseError(path, err)
	}
	if len(doc.Content) == 0 {
		return nil, &core.ParseError{Path: path, Message: "project file is empty"}
	}
	if err := CheckMerges(path, &doc); err != nil {
		return nil, err
	}
	root := Deref(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, &core.ParseError{Path: path, Line: root.Line, Column: root.Column, Message: "project file must be a mapping"}
	}

	m := &Manifest{
		Path:  path,
		Vars:  map[string]string{},
		Nodes: map[string]*Node{},
	}
	for _, p := range Pairs(root) {
		switch p.Key {
		case "name":
			m.Name = String(p.Value)
		case "version":
			m.Version = String(p.Value)
		case "profile":
			m.Profile = String(p.Value)
		case "model-paths", "source-paths":
			paths, ok := Strings(p.Value)
			if !ok {
				return nil, &core.ParseError{Path: path, Line: p.Value.Line, Column: p.Value.Column, Message: p.Key + " must be a list of directories"}
			}
			m.ModelPaths = append(m.ModelPaths, paths...)
		case "vars":
			m.Vars = FlattenMap(p.Value)
		}
	}
	if len(m.ModelPaths) == 0 {
		m.ModelPaths = append([]string(nil), DefaultModelPaths...)
	}

	models := Lookup(root, "models")
	if IsNull(models) {
		m.Nodes[""] = &Node{Path: ""}
		return m, nil
	}
	models = Deref(models)
	if models.Kind != yaml.MappingNode {
		return nil, &core.ConfigError{Line: models.Line, Message: "models must be a mapping"}
	}
	if err := flatten(models, "", []*yaml.Node{models}, m.Nodes); err != nil {
		return nil, err
	}
	return m, nil
}

func flatten(n *yaml.Node, path string, stack []*yaml.Node, out map[string]*Node) error {
	if len(stack) > maxTreeDepth {
		return &core.ConfigError{Path: path, Line: n.Line, Message: "models tree is nested too deeply"}
	}
	node := &Node{Path: path, Line: n.Line}
	out[path] = node

	// field -> rendered value, for contradiction checks between "+key" and "key"
	seen := make(map[string]string)
	for _, p := range Pairs(n) {
		field, plus := strings.CutPrefix(p.Key, "+")
		target := Deref(p.Value)

		if !plus && target != nil && target.Kind == yaml.MappingNode && !mapValuedConfig[field] {
			childPath := joinPath(path, p.Key)
			for _, anc := range stack {
				if anc == target {
					return &core.ConfigError{
						Path:    childPath,
						Line:    p.Value.Line,
						Message: "node refers back to itself or an enclosing node",
					}
				}
			}
			if err := flatten(target, childPath, append(stack, target), out); err != nil {
				return err
			}
			continue
		}

		rendered := String(target)
		if prev, dup := seen[field]; dup && prev != rendered {
			return &core.ConfigError{
				Path:    path,
				Line:    p.KeyAt.Line,
				Message: fmt.Sprintf("%s is set twice with different values (%q and %q)", field, prev, rendered),
			}
		}
		seen[field] = rendered

		if err := SetField(&node.Config, field, p.Value); err != nil {
			return &core.ConfigError{Path: path, Line: p.KeyAt.Line, Message: err.Error()}
		}
	}
	return nil
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)(?:[,:] column (\d+))?:?\s*`)

// NewParseError converts a yaml.v3 error into a located *core.ParseError.
func NewParseError(path string, err error) *core.ParseError {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	pe := &core.ParseError{Path: path, Message: msg, Err: err}
	if m := yamlLinePattern.FindStringSubmatchIndex(msg); m != nil {
		pe.Line, _ = strconv.Atoi(msg[m[2]:m[3]])
		if m[4] >= 0 {
			pe.Column, _ = strconv.Atoi(msg[m[4]:m[5]])
		}
		if m[0] == 0 {
			pe.Message = msg[m[1]:]
		}
	}
	return pe
}
