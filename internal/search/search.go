// Package search ranks registry entities against a free-text query.
package search

import (
	"sort"
	"strings"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Field weights. An exact name match outranks any combination of the rest
// for a single query term.
const (
	WeightExact       = 100
	WeightName        = 40
	WeightTag         = 25
	WeightDescription = 10
	WeightColumn      = 5
	WeightMeta        = 2
)

// DefaultLimit applies when Filters.Limit is not positive.
const DefaultLimit = 20

// Filters narrow a search. Non-empty filters are combined with AND.
type Filters struct {
	Schema          string
	Tag             string
	Materialization string
	// Kinds restricts the entity kinds considered; empty means all
	Kinds []core.EntityKind
	Limit int
}

// Result is one ranked match.
type Result struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Kind            core.EntityKind      `json:"kind"`
	Score           int                  `json:"score"`
	Exact           bool                 `json:"exact"`
	Matched         []string             `json:"matched"`
	Schema          string               `json:"schema,omitempty"`
	Materialization core.Materialization `json:"materialization,omitempty"`
	Description     string               `json:"description,omitempty"`
	Tags            []string             `json:"tags,omitempty"`
}

// Search scores every entity sharing at least one token with the query.
// Results are ordered exact matches first, then by score, then by name.
func Search(reg *registry.Registry, query string, f Filters) []Result {
	tokens := registry.Tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}
	terms := exactTerms(query)

	candidates := make(map[string]struct{})
	for _, tok := range tokens {
		for _, id := range reg.Lookup(tok) {
			candidates[id] = struct{}{}
		}
	}

	results := make([]Result, 0, len(candidates))
	for id := range candidates {
		entry, ok := reg.Entry(id)
		if !ok || !f.match(entry) {
			continue
		}
		fields, _ := reg.Fields(id)
		res := score(entry, fields, tokens, terms)
		if res.Score == 0 {
			continue
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Exact != b.Exact {
			return a.Exact
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// exactTerms are the folded whole query plus each whitespace-separated term.
func exactTerms(query string) []string {
	terms := []string{registry.Fold(query)}
	for _, t := range strings.Fields(query) {
		terms = append(terms, registry.Fold(t))
	}
	return terms
}

var weights = []struct {
	field  registry.Field
	weight int
}{
	{registry.FieldName, WeightName},
	{registry.FieldTags, WeightTag},
	{registry.FieldDescription, WeightDescription},
	{registry.FieldColumns, WeightColumn},
	{registry.FieldMeta, WeightMeta},
}

func score(e registry.Entry, f *registry.Fields, tokens, terms []string) Result {
	res := Result{
		ID:              e.ID,
		Name:            e.Name,
		Kind:            e.Kind,
		Schema:          e.Schema,
		Materialization: e.Materialization,
		Description:     e.Description,
		Tags:            e.Tags,
		Matched:         []string{},
	}

	name := registry.Fold(e.Name)
	for _, t := range terms {
		if t == name {
			res.Exact = true
			res.Score += WeightExact
			res.Matched = append(res.Matched, "exact")
			break
		}
	}
	if f == nil {
		return res
	}

	for _, w := range weights {
		hit := false
		for _, tok := range tokens {
			if f.Has(w.field, tok) {
				res.Score += w.weight
				hit = true
			}
		}
		if hit {
			res.Matched = append(res.Matched, w.field.String())
		}
	}
	return res
}

// match applies the filters. A filter on a field the entity kind does not
// carry excludes the entity.
func (f Filters) match(e registry.Entry) bool {
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, e.Kind) {
		return false
	}
	if f.Schema != "" && (!e.HasSchema || !strings.EqualFold(e.Schema, f.Schema)) {
		return false
	}
	if f.Materialization != "" && (e.Kind != core.KindModel || !strings.EqualFold(string(e.Materialization), f.Materialization)) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range e.Tags {
			if strings.EqualFold(t, f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsKind(kinds []core.EntityKind, k core.EntityKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
