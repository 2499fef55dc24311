package core

import (
	"maps"
	"slices"
)

// ConfigOverrides is a configuration fragment with one optional slot per
// recognized dbt config field. A nil pointer or nil collection means "not set".
// Keys that are not recognized are kept stringified in Extra and never
// participate in resolution.
type ConfigOverrides struct {
	Materialized *Materialization  `json:"materialized,omitempty"`
	Schema       *string           `json:"schema,omitempty"`
	Database     *string           `json:"database,omitempty"`
	Alias        *string           `json:"alias,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	Enabled      *bool             `json:"enabled,omitempty"`
	UniqueKey    *string           `json:"unique_key,omitempty"`
	Access       *string           `json:"access,omitempty"`
	Group        *string           `json:"group,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether no field is set.
func (c ConfigOverrides) IsZero() bool {
	return c.Materialized == nil && c.Schema == nil && c.Database == nil &&
		c.Alias == nil && c.Tags == nil && c.Meta == nil && c.Enabled == nil &&
		c.UniqueKey == nil && c.Access == nil && c.Group == nil && len(c.Extra) == 0
}

// Merge returns c with every field set in other taking precedence.
func (c ConfigOverrides) Merge(other ConfigOverrides) ConfigOverrides {
	out := c.Clone()
	if other.Materialized != nil {
		out.Materialized = ptr(*other.Materialized)
	}
	mergeString(&out.Schema, other.Schema)
	mergeString(&out.Database, other.Database)
	mergeString(&out.Alias, other.Alias)
	mergeString(&out.UniqueKey, other.UniqueKey)
	mergeString(&out.Access, other.Access)
	mergeString(&out.Group, other.Group)
	if other.Tags != nil {
		out.Tags = slices.Clone(other.Tags)
	}
	if other.Meta != nil {
		out.Meta = maps.Clone(other.Meta)
	}
	if other.Enabled != nil {
		out.Enabled = ptr(*other.Enabled)
	}
	for k, v := range other.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (c ConfigOverrides) Clone() ConfigOverrides {
	out := c
	if c.Materialized != nil {
		out.Materialized = ptr(*c.Materialized)
	}
	out.Schema = clonePtr(c.Schema)
	out.Database = clonePtr(c.Database)
	out.Alias = clonePtr(c.Alias)
	out.UniqueKey = clonePtr(c.UniqueKey)
	out.Access = clonePtr(c.Access)
	out.Group = clonePtr(c.Group)
	if c.Enabled != nil {
		out.Enabled = ptr(*c.Enabled)
	}
	out.Tags = slices.Clone(c.Tags)
	out.Meta = maps.Clone(c.Meta)
	out.Extra = maps.Clone(c.Extra)
	return out
}

func mergeString(dst **string, src *string) {
	if src != nil {
		*dst = ptr(*src)
	}
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	return ptr(*s)
}

func ptr[T any](v T) *T { return &v }
