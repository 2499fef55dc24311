package core

import (
	"maps"
	"slices"
	"strings"
)

// SourceTable is one table exposed by a source.
type SourceTable struct {
	Name string `json:"name"`
	// Identifier is the physical table name when it differs from Name
	Identifier  string   `json:"identifier,omitempty"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
	Tests       []Test   `json:"tests,omitempty"`
}

// Source is an externally loaded set of tables. Sources never have upstream dependencies.
type Source struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Schema defaults to the source name, as in dbt
	Schema       string            `json:"schema"`
	Database     string            `json:"database,omitempty"`
	Loader       string            `json:"loader,omitempty"`
	Tables       []SourceTable     `json:"tables,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	Freshness    string            `json:"freshness,omitempty"`
	DocumentPath string            `json:"document_path"`
	Warnings     []ParseWarning    `json:"warnings,omitempty"`
}

// Table looks up a table by name or identifier.
func (s *Source) Table(name string) (*SourceTable, bool) {
	for i := range s.Tables {
		t := &s.Tables[i]
		if strings.EqualFold(t.Name, name) || (t.Identifier != "" && strings.EqualFold(t.Identifier, name)) {
			return t, true
		}
	}
	return nil, false
}

// HasTag reports whether the source carries tag.
func (s *Source) HasTag(tag string) bool {
	return hasTag(s.Tags, tag)
}

// Clone returns a deep copy of the source.
func (s *Source) Clone() *Source {
	c := *s
	if s.Tables != nil {
		c.Tables = make([]SourceTable, len(s.Tables))
		for i, t := range s.Tables {
			t.Columns = cloneColumns(t.Columns)
			t.Tests = cloneTests(t.Tests)
			c.Tables[i] = t
		}
	}
	c.Tags = slices.Clone(s.Tags)
	c.Meta = maps.Clone(s.Meta)
	c.Warnings = slices.Clone(s.Warnings)
	return &c
}

// Owner identifies who is responsible for an exposure.
type Owner struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Exposure is a downstream consumer (dashboard, notebook, application) of models.
type Exposure struct {
	Name         string            `json:"name"`
	Type         string            `json:"type,omitempty"`
	Owner        Owner             `json:"owner"`
	Description  string            `json:"description,omitempty"`
	Maturity     string            `json:"maturity,omitempty"`
	URL          string            `json:"url,omitempty"`
	Refs         []string          `json:"refs,omitempty"`
	SourceRefs   []SourceRef       `json:"source_refs,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	DocumentPath string            `json:"document_path"`
	Warnings     []ParseWarning    `json:"warnings,omitempty"`
}

// HasTag reports whether the exposure carries tag.
func (e *Exposure) HasTag(tag string) bool {
	return hasTag(e.Tags, tag)
}

// Clone returns a deep copy of the exposure.
func (e *Exposure) Clone() *Exposure {
	c := *e
	c.Refs = slices.Clone(e.Refs)
	c.SourceRefs = slices.Clone(e.SourceRefs)
	c.Tags = slices.Clone(e.Tags)
	c.Meta = maps.Clone(e.Meta)
	c.Warnings = slices.Clone(e.Warnings)
	return &c
}

// Metric is a semantic-layer metric defined on top of a model.
type Metric struct {
	Name              string            `json:"name"`
	Label             string            `json:"label,omitempty"`
	Description       string            `json:"description,omitempty"`
	Type              string            `json:"type,omitempty"`
	CalculationMethod string            `json:"calculation_method,omitempty"`
	Expression        string            `json:"expression,omitempty"`
	Timestamp         string            `json:"timestamp,omitempty"`
	TimeGrains        []string          `json:"time_grains,omitempty"`
	Dimensions        []string          `json:"dimensions,omitempty"`
	// Model is the referenced model name, if any
	Model        string            `json:"model,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	DocumentPath string            `json:"document_path"`
	Warnings     []ParseWarning    `json:"warnings,omitempty"`
}

// HasTag reports whether the metric carries tag.
func (m *Metric) HasTag(tag string) bool {
	return hasTag(m.Tags, tag)
}

// Clone returns a deep copy of the metric.
func (m *Metric) Clone() *Metric {
	c := *m
	c.TimeGrains = slices.Clone(m.TimeGrains)
	c.Dimensions = slices.Clone(m.Dimensions)
	c.Tags = slices.Clone(m.Tags)
	c.Meta = maps.Clone(m.Meta)
	c.Warnings = slices.Clone(m.Warnings)
	return &c
}

func cloneColumns(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = c.Clone()
	}
	return out
}
