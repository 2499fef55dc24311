package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Field is an indexed entity field. Search weights are assigned per field.
type Field int

// Indexed fields.
const (
	FieldName Field = iota
	FieldTags
	FieldDescription
	FieldColumns
	FieldMeta
)

// String returns the field name.
func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldTags:
		return "tags"
	case FieldDescription:
		return "description"
	case FieldColumns:
		return "columns"
	case FieldMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Tokenize folds case and splits on every rune that is not a letter or digit.
// Tokens are returned once each, in order of first appearance. The same
// function tokenizes documents at build time and queries at search time.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	folded := cases.Fold().String(s)
	parts := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(parts))
	out := parts[:0]
	for _, p := range parts {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Fold normalizes a whole string the way Tokenize normalizes tokens.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Fields holds the token sets of one entity, per indexed field.
type Fields struct {
	sets [FieldMeta + 1]map[string]struct{}
}

// Has reports whether token occurs in field f.
func (f *Fields) Has(field Field, token string) bool {
	_, ok := f.sets[field][token]
	return ok
}

func (f *Fields) add(field Field, texts ...string) {
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			if f.sets[field] == nil {
				f.sets[field] = make(map[string]struct{})
			}
			f.sets[field][tok] = struct{}{}
		}
	}
}

func (f *Fields) tokens() map[string]struct{} {
	all := make(map[string]struct{})
	for _, set := range f.sets {
		for tok := range set {
			all[tok] = struct{}{}
		}
	}
	return all
}

func metaValues(meta map[string]string) []string {
	out := make([]string, 0, len(meta))
	for _, v := range meta {
		out = append(out, v)
	}
	return out
}

func columnTexts(cols []core.Column) []string {
	out := make([]string, 0, 2*len(cols))
	for _, c := range cols {
		out = append(out, c.Name, c.Description)
	}
	return out
}

func modelFields(m *core.Model) *Fields {
	f := &Fields{}
	f.add(FieldName, m.Name)
	f.add(FieldTags, m.Tags...)
	f.add(FieldDescription, m.Description)
	f.add(FieldColumns, columnTexts(m.Columns)...)
	f.add(FieldMeta, metaValues(m.Meta)...)
	return f
}

func sourceFields(s *core.Source) *Fields {
	f := &Fields{}
	f.add(FieldName, s.Name)
	f.add(FieldTags, s.Tags...)
	f.add(FieldDescription, s.Description)
	for _, t := range s.Tables {
		f.add(FieldColumns, t.Name, t.Identifier, t.Description)
		f.add(FieldColumns, columnTexts(t.Columns)...)
	}
	f.add(FieldMeta, metaValues(s.Meta)...)
	return f
}

func exposureFields(e *core.Exposure) *Fields {
	f := &Fields{}
	f.add(FieldName, e.Name)
	f.add(FieldTags, e.Tags...)
	f.add(FieldDescription, e.Description)
	f.add(FieldMeta, metaValues(e.Meta)...)
	return f
}

func metricFields(m *core.Metric) *Fields {
	f := &Fields{}
	f.add(FieldName, m.Name)
	f.add(FieldTags, m.Tags...)
	f.add(FieldDescription, m.Label, m.Description)
	f.add(FieldColumns, m.Dimensions...)
	f.add(FieldMeta, metaValues(m.Meta)...)
	return f
}
