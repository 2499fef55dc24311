package parser

import (
	"regexp"
	"strings"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Reference is an upstream reference found in a model body or a depends_on list.
type Reference struct {
	Kind core.EntityKind `json:"kind"`
	// Package is set for two-argument ref('package', 'model') calls
	Package string `json:"package,omitempty"`
	// Name is the model name for model references, the source name otherwise
	Name  string `json:"name"`
	Table string `json:"table,omitempty"`
}

// Reference patterns
var (
	// ref('orders'), ref("pkg", "orders"), ref('orders', v=2)
	refPattern = regexp.MustCompile(`\bref\s*\(\s*['"]([^'"]+)['"]\s*(?:,\s*['"]([^'"]+)['"])?[^)]*\)`)
	// source('raw', 'orders')
	sourcePattern = regexp.MustCompile(`\bsource\s*\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]+)['"]\s*\)`)
	// -- line comments, /* block */ comments and {# jinja #} comments
	commentPattern = regexp.MustCompile(`(?s)--[^\n]*|/\*.*?\*/|\{#.*?#\}`)
)

// ScanReferences extracts ref() and source() calls from a model body.
//
// This is a best-effort textual scan: SQL is not parsed and Jinja is not
// executed, so references built dynamically (loops, variables, macros) are
// missed. Comments are stripped first. Results are in order of first
// appearance without duplicates.
func ScanReferences(body string) []Reference {
	if !strings.Contains(body, "ref") && !strings.Contains(body, "source") {
		return nil
	}
	body = commentPattern.ReplaceAllString(body, " ")

	type hit struct {
		at  int
		ref Reference
	}
	var hits []hit
	for _, m := range refPattern.FindAllStringSubmatchIndex(body, -1) {
		r := Reference{Kind: core.KindModel, Name: body[m[2]:m[3]]}
		if m[4] >= 0 {
			r.Package, r.Name = r.Name, body[m[4]:m[5]]
		}
		hits = append(hits, hit{m[0], r})
	}
	for _, m := range sourcePattern.FindAllStringSubmatchIndex(body, -1) {
		hits = append(hits, hit{m[0], Reference{Kind: core.KindSource, Name: body[m[2]:m[3]], Table: body[m[4]:m[5]]}})
	}

	// two patterns, one ordering
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].at < hits[j-1].at; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := make(map[Reference]bool, len(hits))
	out := make([]Reference, 0, len(hits))
	for _, h := range hits {
		if !seen[h.ref] {
			seen[h.ref] = true
			out = append(out, h.ref)
		}
	}
	return out
}

// ParseReference reads a single reference expression as found in depends_on,
// refs and sources lists, relationship targets and metric models:
//
//	ref('orders')            model
//	source('raw', 'orders')  source
//	model.shop.orders        model (dbt unique id)
//	source.shop.raw.orders   source (dbt unique id)
//	raw.orders               source, when defaultKind is source
//	orders                   defaultKind
func ParseReference(expr string, defaultKind core.EntityKind) (Reference, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Reference{}, false
	}
	if refs := ScanReferences(expr); len(refs) == 1 {
		return refs[0], true
	}
	if strings.ContainsAny(expr, "(){}'\" ") {
		return Reference{}, false
	}

	parts := strings.Split(expr, ".")
	switch {
	case parts[0] == "model" && len(parts) == 3:
		return Reference{Kind: core.KindModel, Package: parts[1], Name: parts[2]}, true
	case parts[0] == "source" && len(parts) == 4:
		return Reference{Kind: core.KindSource, Name: parts[2], Table: parts[3]}, true
	case defaultKind == core.KindSource && len(parts) <= 2:
		r := Reference{Kind: core.KindSource, Name: parts[0]}
		if len(parts) == 2 {
			r.Table = parts[1]
		}
		return r, true
	case len(parts) == 1:
		return Reference{Kind: defaultKind, Name: expr}, true
	}
	return Reference{}, false
}

// modelName returns the name a model reference resolves to within project.
// References into other packages keep their package qualifier so they never
// bind to a same-named local model.
func (r Reference) modelName(project string) string {
	if r.Package == "" || strings.EqualFold(r.Package, project) {
		return r.Name
	}
	return r.Package + "." + r.Name
}

// AttachBody merges references scanned from a model body into m.
func AttachBody(m *core.Model, body, project string) {
	AttachReferences(m, ScanReferences(body), project)
}

// AttachReferences merges already scanned references into m.
func AttachReferences(m *core.Model, refs []Reference, project string) {
	for _, r := range refs {
		addReference(m, r, project)
	}
}

func addReference(m *core.Model, r Reference, project string) {
	switch r.Kind {
	case core.KindSource:
		m.AddSourceRef(core.SourceRef{Source: r.Name, Table: r.Table})
	default:
		m.AddRef(r.modelName(project))
	}
}
