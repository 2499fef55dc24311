package core

import (
	"maps"
	"slices"
	"strings"
)

// =============================================================================
// Tests
// =============================================================================

// TestKind is the closed set of data test kinds.
type TestKind string

// Test kinds. Anything that is not one of the generic dbt tests is custom.
const (
	TestNotNull        TestKind = "not_null"
	TestUnique         TestKind = "unique"
	TestAcceptedValues TestKind = "accepted_values"
	TestRelationships  TestKind = "relationships"
	TestCustom         TestKind = "custom"
)

// Relationship is the target of a relationships test.
type Relationship struct {
	Model string `json:"model"`
	Field string `json:"field"`
}

// Test is a data test attached to a model or a column.
type Test struct {
	Kind TestKind `json:"kind"`
	// Name is the declared test name; for custom tests the (possibly package-qualified) macro.
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	// Column is empty for model-level tests.
	Column         string            `json:"column,omitempty"`
	AcceptedValues []string          `json:"accepted_values,omitempty"`
	Relationship   *Relationship     `json:"relationship,omitempty"`
	Args           map[string]string `json:"args,omitempty"`
}

// Clone returns a deep copy of the test.
func (t Test) Clone() Test {
	t.AcceptedValues = slices.Clone(t.AcceptedValues)
	if t.Relationship != nil {
		r := *t.Relationship
		t.Relationship = &r
	}
	t.Args = maps.Clone(t.Args)
	return t
}

// Constraint tags derived from tests and contract constraints.
const (
	ConstraintRequired   = "required"
	ConstraintUnique     = "unique"
	ConstraintEnumerated = "enumerated"
	ConstraintForeignKey = "foreign_key"
	ConstraintPrimaryKey = "primary_key"
	ConstraintCheck      = "check"
)

// ConstraintForTest maps a test kind to the constraint tag it implies.
func ConstraintForTest(kind TestKind) (string, bool) {
	switch kind {
	case TestNotNull:
		return ConstraintRequired, true
	case TestUnique:
		return ConstraintUnique, true
	case TestAcceptedValues:
		return ConstraintEnumerated, true
	case TestRelationships:
		return ConstraintForeignKey, true
	default:
		return "", false
	}
}

// =============================================================================
// Columns and models
// =============================================================================

// Column is a documented column of a model or source table.
type Column struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	DataType    string            `json:"data_type,omitempty"`
	Tests       []Test            `json:"tests,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	// Constraints is a sorted set derived from tests and contract constraints.
	Constraints []string `json:"constraints,omitempty"`
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	c.Tests = cloneTests(c.Tests)
	c.Meta = maps.Clone(c.Meta)
	c.Tags = slices.Clone(c.Tags)
	c.Constraints = slices.Clone(c.Constraints)
	return c
}

// SourceRef is a source('source', 'table') reference.
type SourceRef struct {
	Source string `json:"source"`
	Table  string `json:"table,omitempty"`
}

// String renders the reference as source.table.
func (r SourceRef) String() string {
	if r.Table == "" {
		return r.Source
	}
	return r.Source + "." + r.Table
}

// Model represents a dbt model after configuration has been resolved.
type Model struct {
	// Name is unique within a snapshot (case-insensitive)
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Materialization is the resolved storage strategy
	Materialization Materialization `json:"materialization"`
	// Schema is the resolved schema (dataset) name
	Schema   string `json:"schema,omitempty"`
	Database string `json:"database,omitempty"`
	Alias    string `json:"alias,omitempty"`
	// Path is the dotted project path used for config resolution (e.g. "shop.marts.orders")
	Path string `json:"path"`
	// DocumentPath is the schema document the model was declared in
	DocumentPath string            `json:"document_path"`
	Columns      []Column          `json:"columns,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	// Refs are the names of upstream models
	Refs []string `json:"refs,omitempty"`
	// SourceRefs are the upstream sources
	SourceRefs []SourceRef `json:"source_refs,omitempty"`
	// Config holds the overrides exactly as declared on the entity
	Config    ConfigOverrides `json:"config"`
	Tests     []Test          `json:"tests,omitempty"`
	Enabled   bool            `json:"enabled"`
	Access    string          `json:"access,omitempty"`
	Group     string          `json:"group,omitempty"`
	UniqueKey string          `json:"unique_key,omitempty"`
	Warnings  []ParseWarning  `json:"warnings,omitempty"`
}

// Relation returns database.schema.identifier, omitting empty parts.
func (m *Model) Relation() string {
	identifier := m.Name
	if m.Alias != "" {
		identifier = m.Alias
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{m.Database, m.Schema, identifier} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Column looks up a column by name, case-insensitively.
func (m *Model) Column(name string) (*Column, bool) {
	for i := range m.Columns {
		if strings.EqualFold(m.Columns[i].Name, name) {
			return &m.Columns[i], true
		}
	}
	return nil, false
}

// HasTag reports whether the model carries tag, case-insensitively.
func (m *Model) HasTag(tag string) bool {
	return hasTag(m.Tags, tag)
}

// AddRef records an upstream model reference once.
func (m *Model) AddRef(name string) {
	for _, r := range m.Refs {
		if strings.EqualFold(r, name) {
			return
		}
	}
	m.Refs = append(m.Refs, name)
}

// AddSourceRef records an upstream source reference once.
func (m *Model) AddSourceRef(ref SourceRef) {
	for _, r := range m.SourceRefs {
		if strings.EqualFold(r.Source, ref.Source) && strings.EqualFold(r.Table, ref.Table) {
			return
		}
	}
	m.SourceRefs = append(m.SourceRefs, ref)
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := *m
	c.Columns = cloneColumns(m.Columns)
	c.Tags = slices.Clone(m.Tags)
	c.Meta = maps.Clone(m.Meta)
	c.Refs = slices.Clone(m.Refs)
	c.SourceRefs = slices.Clone(m.SourceRefs)
	c.Config = m.Config.Clone()
	c.Tests = cloneTests(m.Tests)
	c.Warnings = slices.Clone(m.Warnings)
	return &c
}

func cloneTests(tests []Test) []Test {
	if tests == nil {
		return nil
	}
	out := make([]Test, len(tests))
	for i, t := range tests {
		out[i] = t.Clone()
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
