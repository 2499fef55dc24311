package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Recognized config fields. Everything else lands in ConfigOverrides.Extra.
const (
	FieldMaterialized = "materialized"
	FieldSchema       = "schema"
	FieldDatabase     = "database"
	FieldAlias        = "alias"
	FieldTags         = "tags"
	FieldMeta         = "meta"
	FieldEnabled      = "enabled"
	FieldUniqueKey    = "unique_key"
	FieldAccess       = "access"
	FieldGroup        = "group"
)

var recognizedFields = map[string]bool{
	FieldMaterialized: true,
	FieldSchema:       true,
	FieldDatabase:     true,
	FieldAlias:        true,
	FieldTags:         true,
	FieldMeta:         true,
	FieldEnabled:      true,
	FieldUniqueKey:    true,
	FieldAccess:       true,
	FieldGroup:        true,
}

// mapValuedConfig are config keys whose value is a mapping. Without a "+"
// prefix they would otherwise be read as sub-directories.
var mapValuedConfig = map[string]bool{
	FieldMeta:      true,
	"docs":         true,
	"persist_docs": true,
	"grants":       true,
	"contract":     true,
	"config":       true,
}

// IsRecognizedField reports whether key is a config field with a typed slot.
func IsRecognizedField(key string) bool {
	return recognizedFields[key]
}

// FieldError is a malformed value for a single config field.
type FieldError struct {
	Field   string
	Line    int
	Column  int
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SetField decodes one config value into o. Unknown fields are stringified into Extra.
func SetField(o *core.ConfigOverrides, field string, v *yaml.Node) error {
	v = Deref(v)
	fail := func(format string, args ...any) error {
		fe := &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
		if v != nil {
			fe.Line, fe.Column = v.Line, v.Column
		}
		return fe
	}

	switch field {
	case FieldMaterialized:
		if !IsScalar(v) || IsNull(v) {
			return fail("expected a scalar materialization")
		}
		m := core.ParseMaterialization(v.Value)
		if m == "" {
			return fail("empty materialization")
		}
		o.Materialized = &m
	case FieldSchema, FieldDatabase, FieldAlias, FieldUniqueKey, FieldAccess, FieldGroup:
		var s string
		switch {
		case IsNull(v):
			// null leaves the field unset
			return nil
		case field == FieldUniqueKey && v.Kind == yaml.SequenceNode:
			list, ok := Strings(v)
			if !ok {
				return fail("expected a list of column names")
			}
			s = strings.Join(list, ",")
		case IsScalar(v):
			s = v.Value
		default:
			return fail("expected a string")
		}
		switch field {
		case FieldSchema:
			o.Schema = &s
		case FieldDatabase:
			o.Database = &s
		case FieldAlias:
			o.Alias = &s
		case FieldUniqueKey:
			o.UniqueKey = &s
		case FieldAccess:
			o.Access = &s
		case FieldGroup:
			o.Group = &s
		}
	case FieldTags:
		tags, ok := Strings(v)
		if !ok {
			return fail("expected a tag or a list of tags")
		}
		o.Tags = NormalizeSet(tags)
		if o.Tags == nil {
			o.Tags = []string{}
		}
	case FieldMeta:
		meta, ok := StringMap(v)
		if !ok {
			return fail("expected a mapping")
		}
		if meta == nil {
			meta = map[string]string{}
		}
		o.Meta = meta
	case FieldEnabled:
		if !IsScalar(v) {
			return fail("expected true or false")
		}
		b, err := strconv.ParseBool(v.Value)
		if err != nil {
			return fail("expected true or false, got %q", v.Value)
		}
		o.Enabled = &b
	default:
		if o.Extra == nil {
			o.Extra = make(map[string]string)
		}
		o.Extra[field] = String(v)
	}
	return nil
}

// DecodeOverrides reads an entity-level config block. Keys may carry the
// "+" prefix. Malformed fields are skipped and returned as errors so the
// caller can attach them as warnings.
func DecodeOverrides(n *yaml.Node) (core.ConfigOverrides, []error) {
	var o core.ConfigOverrides
	var errs []error
	for _, p := range Pairs(n) {
		if err := SetField(&o, strings.TrimPrefix(p.Key, "+"), p.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return o, errs
}
