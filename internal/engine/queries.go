package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cache"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/lineage"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/search"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/state"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// DefaultSchemaName labels models that set no schema.
const DefaultSchemaName = "default"

// GetModel returns a model by name.
func (e *Engine) GetModel(ctx context.Context, name string) (*core.Model, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Model(name)
}

// GetSource returns a source by name.
func (e *Engine) GetSource(ctx context.Context, name string) (*core.Source, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Source(name)
}

// SearchModels ranks entities against query. Only models are searched
// unless f.Kinds says otherwise.
func (e *Engine) SearchModels(ctx context.Context, query string, f search.Filters) ([]search.Result, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(f.Kinds) == 0 {
		f.Kinds = []core.EntityKind{core.KindModel}
	}
	return search.Search(reg, query, f), nil
}

// GetLineage walks the graph around a model. direction is "upstream",
// "downstream" or "both" (the default).
func (e *Engine) GetLineage(ctx context.Context, name, direction string, depth int) (*lineage.Result, error) {
	dir, err := lineage.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return lineage.Resolve(reg, name, dir, depth)
}

// ListModels returns sorted model names, optionally restricted to a schema.
func (e *Engine) ListModels(ctx context.Context, schemaFilter string) ([]string, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range reg.Models() {
		if schemaFilter != "" && !strings.EqualFold(schemaLabel(m.Schema), schemaFilter) {
			continue
		}
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ModelsBySchema groups sorted model names by schema.
func (e *Engine) ModelsBySchema(ctx context.Context, schemaFilter string) (map[string][]string, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, m := range reg.Models() {
		schema := schemaLabel(m.Schema)
		if schemaFilter != "" && !strings.EqualFold(schema, schemaFilter) {
			continue
		}
		out[schema] = append(out[schema], m.Name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out, nil
}

func schemaLabel(schema string) string {
	if schema == "" {
		return DefaultSchemaName
	}
	return schema
}

// ColumnInfo is a column together with the model that declares it.
type ColumnInfo struct {
	Model    string      `json:"model"`
	Relation string      `json:"relation"`
	Column   core.Column `json:"column"`
}

// GetColumn returns one column of a model. A missing column yields a
// *core.NotFoundError suggesting the model's other columns.
func (e *Engine) GetColumn(ctx context.Context, model, column string) (*ColumnInfo, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	m, err := reg.Model(model)
	if err != nil {
		return nil, err
	}
	col, ok := m.Column(column)
	if !ok {
		names := make([]string, 0, len(m.Columns))
		for _, c := range m.Columns {
			names = append(names, c.Name)
		}
		return nil, &core.NotFoundError{
			Kind:        core.KindColumn,
			Name:        m.Name + "." + column,
			Suggestions: registry.Suggest(column, names),
		}
	}
	return &ColumnInfo{Model: m.Name, Relation: m.Relation(), Column: col.Clone()}, nil
}

// SchemaCount is the number of models in one schema.
type SchemaCount struct {
	Name   string `json:"name"`
	Models int    `json:"models"`
}

// ModelSummary is the short form of a model used in overviews.
type ModelSummary struct {
	Name            string               `json:"name"`
	Materialization core.Materialization `json:"materialization"`
	Schema          string               `json:"schema"`
	Description     string               `json:"description,omitempty"`
	Columns         []string             `json:"columns,omitempty"`
}

// Overview describes the whole indexed project.
type Overview struct {
	Project          registry.Project       `json:"project"`
	Stats            registry.Stats         `json:"stats"`
	Schemas          []SchemaCount          `json:"schemas"`
	Materializations map[string]int         `json:"materializations"`
	Tags             []string               `json:"tags"`
	Models           []ModelSummary         `json:"models"`
	Roots            []string               `json:"roots"`
	Leaves           []string               `json:"leaves"`
	WarehouseType    string                 `json:"warehouse_type,omitempty"`
	Dangling         []registry.DanglingRef `json:"dangling,omitempty"`
	Version          string                 `json:"version"`
	BuildID          string                 `json:"build_id"`
	BuiltAt          time.Time              `json:"built_at"`
}

// Overview summarizes the current snapshot. Roots are models with no
// upstream model; leaves are models no other model depends on.
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Project:          reg.Project(),
		Stats:            reg.Stats(),
		Materializations: make(map[string]int),
		Tags:             []string{},
		Roots:            []string{},
		Leaves:           []string{},
		Dangling:         reg.AllDangling(),
		Version:          reg.ContentHash(),
		BuildID:          reg.BuildID(),
		BuiltAt:          reg.BuiltAt(),
	}
	if t, ok := e.warehouseType(reg, ""); ok {
		ov.WarehouseType = string(t)
	}

	schemas := make(map[string]int)
	tags := make(map[string]struct{})
	graph := reg.Graph()
	for _, m := range reg.Models() {
		schemas[schemaLabel(m.Schema)]++
		ov.Materializations[string(m.Materialization)]++
		for _, t := range m.Tags {
			tags[t] = struct{}{}
		}

		summary := ModelSummary{
			Name:            m.Name,
			Materialization: m.Materialization,
			Schema:          schemaLabel(m.Schema),
			Description:     m.Description,
		}
		for _, c := range m.Columns {
			summary.Columns = append(summary.Columns, c.Name)
		}
		ov.Models = append(ov.Models, summary)

		id := core.EntityID(core.KindModel, m.Name)
		if !hasKind(graph.GetParents(id), core.KindModel) {
			ov.Roots = append(ov.Roots, m.Name)
		}
		if !hasKind(graph.GetChildren(id), core.KindModel) {
			ov.Leaves = append(ov.Leaves, m.Name)
		}
	}
	for _, s := range reg.Sources() {
		for _, t := range s.Tags {
			tags[t] = struct{}{}
		}
	}

	for name, n := range schemas {
		ov.Schemas = append(ov.Schemas, SchemaCount{Name: name, Models: n})
	}
	sort.Slice(ov.Schemas, func(i, j int) bool { return ov.Schemas[i].Name < ov.Schemas[j].Name })
	for t := range tags {
		ov.Tags = append(ov.Tags, t)
	}
	sort.Strings(ov.Tags)
	return ov, nil
}

func hasKind(ids []string, kind core.EntityKind) bool {
	for _, id := range ids {
		if k, _ := core.SplitEntityID(id); k == kind {
			return true
		}
	}
	return false
}

// CacheStats reports cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// Builds returns the most recent recorded builds, newest first.
func (e *Engine) Builds(ctx context.Context, limit int) ([]*state.Build, error) {
	return e.store.Builds(ctx, limit)
}
