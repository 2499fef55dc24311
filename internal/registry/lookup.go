package registry

import (
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/dag"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

const maxSuggestions = 3

// Model returns a copy of the named model.
func (r *Registry) Model(name string) (*core.Model, error) {
	m, ok := r.models[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, r.notFound(core.KindModel, name, r.modelNames())
	}
	return m.Clone(), nil
}

// Source returns a copy of the named source.
func (r *Registry) Source(name string) (*core.Source, error) {
	s, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, r.notFound(core.KindSource, name, displayNames(r.sources, func(s *core.Source) string { return s.Name }))
	}
	return s.Clone(), nil
}

// Exposure returns a copy of the named exposure.
func (r *Registry) Exposure(name string) (*core.Exposure, error) {
	e, ok := r.exposures[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, r.notFound(core.KindExposure, name, displayNames(r.exposures, func(e *core.Exposure) string { return e.Name }))
	}
	return e.Clone(), nil
}

// Metric returns a copy of the named metric.
func (r *Registry) Metric(name string) (*core.Metric, error) {
	m, ok := r.metrics[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, r.notFound(core.KindMetric, name, displayNames(r.metrics, func(m *core.Metric) string { return m.Name }))
	}
	return m.Clone(), nil
}

// HasModel reports whether an enabled model with that name exists.
func (r *Registry) HasModel(name string) bool {
	_, ok := r.models[strings.ToLower(name)]
	return ok
}

// Models returns copies of all enabled models, sorted by name.
func (r *Registry) Models() []*core.Model {
	out := make([]*core.Model, 0, len(r.models))
	for _, k := range sortedKeys(r.models) {
		out = append(out, r.models[k].Clone())
	}
	return out
}

// Sources returns copies of all sources, sorted by name.
func (r *Registry) Sources() []*core.Source {
	out := make([]*core.Source, 0, len(r.sources))
	for _, k := range sortedKeys(r.sources) {
		out = append(out, r.sources[k].Clone())
	}
	return out
}

// Exposures returns copies of all exposures, sorted by name.
func (r *Registry) Exposures() []*core.Exposure {
	out := make([]*core.Exposure, 0, len(r.exposures))
	for _, k := range sortedKeys(r.exposures) {
		out = append(out, r.exposures[k].Clone())
	}
	return out
}

// Metrics returns copies of all metrics, sorted by name.
func (r *Registry) Metrics() []*core.Metric {
	out := make([]*core.Metric, 0, len(r.metrics))
	for _, k := range sortedKeys(r.metrics) {
		out = append(out, r.metrics[k].Clone())
	}
	return out
}

// Entry is a read-only summary of an indexed entity.
type Entry struct {
	ID              string
	Kind            core.EntityKind
	Name            string
	Schema          string
	Materialization core.Materialization
	Description     string
	Tags            []string
	// HasSchema is false for kinds that carry no schema
	HasSchema bool
}

// Entry returns the summary of the entity with the given id.
func (r *Registry) Entry(id string) (Entry, bool) {
	kind, key := core.SplitEntityID(id)
	switch kind {
	case core.KindModel:
		if m, ok := r.models[key]; ok {
			return Entry{ID: id, Kind: kind, Name: m.Name, Schema: m.Schema, Materialization: m.Materialization,
				Description: m.Description, Tags: append([]string(nil), m.Tags...), HasSchema: true}, true
		}
	case core.KindSource:
		if s, ok := r.sources[key]; ok {
			return Entry{ID: id, Kind: kind, Name: s.Name, Schema: s.Schema, Description: s.Description,
				Tags: append([]string(nil), s.Tags...), HasSchema: true}, true
		}
	case core.KindExposure:
		if e, ok := r.exposures[key]; ok {
			return Entry{ID: id, Kind: kind, Name: e.Name, Description: e.Description, Tags: append([]string(nil), e.Tags...)}, true
		}
	case core.KindMetric:
		if m, ok := r.metrics[key]; ok {
			return Entry{ID: id, Kind: kind, Name: m.Name, Description: m.Description, Tags: append([]string(nil), m.Tags...)}, true
		}
	}
	return Entry{}, false
}

// Lookup returns the ids of entities whose indexed fields contain token, sorted.
func (r *Registry) Lookup(token string) []string {
	ids := r.index[token]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Fields returns the field token sets of an entity.
func (r *Registry) Fields(id string) (*Fields, bool) {
	f, ok := r.fields[id]
	return f, ok
}

// Graph returns a read-only view of the dependency graph.
func (r *Registry) Graph() dag.Reader { return r.graph.ReadOnly() }

// Dangling returns the unresolved references of an entity.
func (r *Registry) Dangling(id string) []DanglingRef {
	return append([]DanglingRef(nil), r.dangling[id]...)
}

// AllDangling returns every unresolved reference, ordered by referring entity.
func (r *Registry) AllDangling() []DanglingRef {
	var out []DanglingRef
	for _, id := range sortedKeys(r.dangling) {
		out = append(out, r.dangling[id]...)
	}
	return out
}

// Stats returns snapshot counts.
func (r *Registry) Stats() Stats { return r.stats }

// BuiltAt returns when the snapshot was built.
func (r *Registry) BuiltAt() time.Time { return r.builtAt }

// ContentHash returns the content version the snapshot was built from.
func (r *Registry) ContentHash() string { return r.contentHash }

// BuildID returns the build identifier.
func (r *Registry) BuildID() string { return r.buildID }

// Project returns the project metadata of the snapshot.
func (r *Registry) Project() Project {
	p := r.project
	p.Vars = maps.Clone(r.project.Vars)
	return p
}

func (r *Registry) modelNames() []string {
	return displayNames(r.models, func(m *core.Model) string { return m.Name })
}

func (r *Registry) notFound(kind core.EntityKind, name string, candidates []string) error {
	return &core.NotFoundError{Kind: kind, Name: name, Suggestions: Suggest(name, candidates)}
}

// Suggest returns up to three candidates close to name, nearest first.
// A candidate qualifies when its edit distance is small relative to its
// length or when one name contains the other.
func Suggest(name string, candidates []string) []string {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	type scored struct {
		name string
		dist int
	}
	var hits []scored
	for _, c := range candidates {
		lc := strings.ToLower(c)
		d := levenshtein.Distance(needle, lc, nil)
		limit := max(2, len(lc)/3)
		if d <= limit || strings.Contains(lc, needle) || strings.Contains(needle, lc) {
			hits = append(hits, scored{name: c, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].name < hits[j].name
	})
	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(hits) && i < maxSuggestions; i++ {
		out = append(out, hits[i].name)
	}
	return out
}

func displayNames[V any](m map[string]V, name func(V) string) []string {
	out := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, name(m[k]))
	}
	return out
}
