// Package registry holds the immutable snapshot built from parsed documents.
//
// A Registry is assembled once by Build from parser output and is never
// mutated afterwards. It owns the entity maps, the inverted token index used
// by search and the dependency graph used by lineage. Every accessor is safe
// for concurrent use without locking.
package registry

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/dag"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Input is the set of entities a snapshot is built from.
type Input struct {
	Models    []*core.Model
	Sources   []*core.Source
	Exposures []*core.Exposure
	Metrics   []*core.Metric
}

// Options carries snapshot metadata.
type Options struct {
	BuiltAt     time.Time
	ContentHash string
	BuildID     string
	Project     Project
}

// Project describes the project a snapshot was built from.
type Project struct {
	Name    string            `json:"name"`
	Version string            `json:"version,omitempty"`
	Profile string            `json:"profile,omitempty"`
	Vars    map[string]string `json:"vars,omitempty"`
	// Target and DefaultDatabase come from the selected target
	Target          string `json:"target,omitempty"`
	DefaultDatabase string `json:"default_database,omitempty"`
}

// DanglingRef is a reference that did not resolve inside the snapshot.
type DanglingRef struct {
	// From is the id of the referring entity
	From string `json:"from"`
	// Reference is the referenced name as written
	Reference string          `json:"reference"`
	Kind      core.EntityKind `json:"kind"`
	Reason    string          `json:"reason"`
}

// Stats summarizes a snapshot.
type Stats struct {
	Models         int  `json:"models"`
	Sources        int  `json:"sources"`
	Exposures      int  `json:"exposures"`
	Metrics        int  `json:"metrics"`
	DisabledModels int  `json:"disabled_models"`
	Edges          int  `json:"edges"`
	Dangling       int  `json:"dangling"`
	Tokens         int  `json:"tokens"`
	Acyclic        bool `json:"acyclic"`
}

// Registry is an immutable, queryable snapshot.
type Registry struct {
	models    map[string]*core.Model
	sources   map[string]*core.Source
	exposures map[string]*core.Exposure
	metrics   map[string]*core.Metric
	disabled  map[string]string // lower name -> document path

	index    map[string]map[string]struct{} // token -> entity ids
	fields   map[string]*Fields             // entity id -> field tokens
	graph    *dag.Graph
	dangling map[string][]DanglingRef // entity id -> unresolved refs

	stats       Stats
	builtAt     time.Time
	contentHash string
	buildID     string
	project     Project
}

// Build assembles a snapshot. The entities are owned by the registry after
// the call; callers hand over copies.
func Build(in Input, opts Options) (*Registry, error) {
	r := &Registry{
		models:      make(map[string]*core.Model, len(in.Models)),
		sources:     make(map[string]*core.Source, len(in.Sources)),
		exposures:   make(map[string]*core.Exposure, len(in.Exposures)),
		metrics:     make(map[string]*core.Metric, len(in.Metrics)),
		disabled:    make(map[string]string),
		index:       make(map[string]map[string]struct{}),
		fields:      make(map[string]*Fields),
		graph:       dag.NewGraph(),
		dangling:    make(map[string][]DanglingRef),
		builtAt:     opts.BuiltAt,
		contentHash: opts.ContentHash,
		buildID:     opts.BuildID,
		project:     opts.Project,
	}
	r.project.Vars = maps.Clone(opts.Project.Vars)

	if err := r.register(in); err != nil {
		return nil, err
	}
	r.link()
	r.indexAll()

	acyclic, _ := r.graph.HasCycle()
	r.stats = Stats{
		Models:         len(r.models),
		Sources:        len(r.sources),
		Exposures:      len(r.exposures),
		Metrics:        len(r.metrics),
		DisabledModels: len(r.disabled),
		Edges:          r.graph.EdgeCount(),
		Tokens:         len(r.index),
		Acyclic:        !acyclic,
	}
	for _, refs := range r.dangling {
		r.stats.Dangling += len(refs)
	}
	return r, nil
}

func (r *Registry) register(in Input) error {
	// Duplicates are checked across enabled and disabled models alike.
	seen := make(map[string]string, len(in.Models))
	for _, m := range in.Models {
		key := strings.ToLower(m.Name)
		if first, dup := seen[key]; dup {
			return &core.DuplicateNameError{Kind: core.KindModel, Name: m.Name, First: first, Second: m.DocumentPath}
		}
		seen[key] = m.DocumentPath
		if !m.Enabled {
			r.disabled[key] = m.DocumentPath
			continue
		}
		r.models[key] = m
	}
	for _, s := range in.Sources {
		key := strings.ToLower(s.Name)
		if prev, dup := r.sources[key]; dup {
			return &core.DuplicateNameError{Kind: core.KindSource, Name: s.Name, First: prev.DocumentPath, Second: s.DocumentPath}
		}
		r.sources[key] = s
	}
	for _, e := range in.Exposures {
		key := strings.ToLower(e.Name)
		if prev, dup := r.exposures[key]; dup {
			return &core.DuplicateNameError{Kind: core.KindExposure, Name: e.Name, First: prev.DocumentPath, Second: e.DocumentPath}
		}
		r.exposures[key] = e
	}
	for _, m := range in.Metrics {
		key := strings.ToLower(m.Name)
		if prev, dup := r.metrics[key]; dup {
			return &core.DuplicateNameError{Kind: core.KindMetric, Name: m.Name, First: prev.DocumentPath, Second: m.DocumentPath}
		}
		r.metrics[key] = m
	}
	return nil
}

// link adds every entity to the graph, then the edges between them.
func (r *Registry) link() {
	for _, m := range r.models {
		r.graph.AddNode(core.EntityID(core.KindModel, m.Name), m.Name)
	}
	for _, s := range r.sources {
		r.graph.AddNode(core.EntityID(core.KindSource, s.Name), s.Name)
	}
	for _, e := range r.exposures {
		r.graph.AddNode(core.EntityID(core.KindExposure, e.Name), e.Name)
	}
	for _, m := range r.metrics {
		r.graph.AddNode(core.EntityID(core.KindMetric, m.Name), m.Name)
	}

	for _, id := range sortedKeys(r.models) {
		m := r.models[id]
		self := core.EntityID(core.KindModel, m.Name)
		for _, ref := range m.Refs {
			r.linkModel(self, ref)
		}
		for _, ref := range m.SourceRefs {
			r.linkSource(self, ref)
		}
	}
	for _, id := range sortedKeys(r.exposures) {
		e := r.exposures[id]
		self := core.EntityID(core.KindExposure, e.Name)
		for _, ref := range e.Refs {
			r.linkModel(self, ref)
		}
		for _, ref := range e.SourceRefs {
			r.linkSource(self, ref)
		}
	}
	for _, id := range sortedKeys(r.metrics) {
		m := r.metrics[id]
		if m.Model != "" {
			r.linkModel(core.EntityID(core.KindMetric, m.Name), m.Model)
		}
	}
}

func (r *Registry) linkModel(from, ref string) {
	key := strings.ToLower(ref)
	if _, ok := r.models[key]; ok {
		// Both nodes exist, AddEdge cannot fail.
		_ = r.graph.AddEdge(core.EntityID(core.KindModel, key), from)
		return
	}
	reason := "model not found"
	switch {
	case r.disabled[key] != "":
		reason = "model is disabled"
	case strings.Contains(key, "."):
		reason = "model belongs to another package"
	}
	r.dangling[from] = append(r.dangling[from], DanglingRef{From: from, Reference: ref, Kind: core.KindModel, Reason: reason})
}

func (r *Registry) linkSource(from string, ref core.SourceRef) {
	key := strings.ToLower(ref.Source)
	if _, ok := r.sources[key]; ok {
		_ = r.graph.AddEdge(core.EntityID(core.KindSource, key), from)
		return
	}
	r.dangling[from] = append(r.dangling[from], DanglingRef{From: from, Reference: ref.String(), Kind: core.KindSource, Reason: "source not found"})
}

func (r *Registry) indexAll() {
	for _, m := range r.models {
		r.addFields(core.EntityID(core.KindModel, m.Name), modelFields(m))
	}
	for _, s := range r.sources {
		r.addFields(core.EntityID(core.KindSource, s.Name), sourceFields(s))
	}
	for _, e := range r.exposures {
		r.addFields(core.EntityID(core.KindExposure, e.Name), exposureFields(e))
	}
	for _, m := range r.metrics {
		r.addFields(core.EntityID(core.KindMetric, m.Name), metricFields(m))
	}
}

func (r *Registry) addFields(id string, f *Fields) {
	r.fields[id] = f
	for tok := range f.tokens() {
		ids, ok := r.index[tok]
		if !ok {
			ids = make(map[string]struct{})
			r.index[tok] = ids
		}
		ids[id] = struct{}{}
	}
}

// String describes the snapshot in one line, for logs.
func (r *Registry) String() string {
	return fmt.Sprintf("snapshot %s: %d models, %d sources, %d exposures, %d metrics",
		r.buildID, r.stats.Models, r.stats.Sources, r.stats.Exposures, r.stats.Metrics)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
