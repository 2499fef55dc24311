package engine

import (
	"context"
	"sort"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/warehouse"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// DatasetMapping groups models by the dataset they are built into.
type DatasetMapping struct {
	// WarehouseType is empty when no warehouse could be determined
	WarehouseType string `json:"warehouse_type"`
	// Term is the warehouse's word for a dataset, e.g. "dataset" or "schema"
	Term        string              `json:"term"`
	Mappings    map[string][]string `json:"mappings"`
	TotalModels int                 `json:"total_models"`
}

// GetDatasetMapping maps every persisted model to its dataset. The
// warehouse comes from warehouseType, then the engine configuration, then
// the project's profile and vars. Ephemeral models are never built and are
// left out.
func (e *Engine) GetDatasetMapping(ctx context.Context, warehouseType string) (*DatasetMapping, error) {
	if warehouseType != "" {
		if _, err := warehouse.Parse(warehouseType); err != nil {
			return nil, err
		}
	}
	reg, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &warehouse.Config{Term: "schema"}
	out := &DatasetMapping{Mappings: make(map[string][]string)}
	if t, ok := e.warehouseType(reg, warehouseType); ok {
		if c, found := warehouse.Get(t); found {
			cfg = c
			out.WarehouseType = string(t)
		}
	}
	out.Term = cfg.Term

	defaultDB := reg.Project().DefaultDatabase
	for _, m := range reg.Models() {
		if m.Materialization == core.MaterializationEphemeral {
			continue
		}
		dataset := cfg.DatasetName(m, defaultDB)
		if dataset == "" {
			dataset = DefaultSchemaName
		}
		out.Mappings[dataset] = append(out.Mappings[dataset], m.Name)
		out.TotalModels++
	}
	for _, names := range out.Mappings {
		sort.Strings(names)
	}

	e.logger.Debug("dataset mapping", "warehouse", out.WarehouseType, "datasets", len(out.Mappings), "models", out.TotalModels)
	return out, nil
}

// warehouseType resolves the warehouse for reg. requested wins over the
// configured type, which wins over inference.
func (e *Engine) warehouseType(reg *registry.Registry, requested string) (warehouse.Type, bool) {
	for _, s := range []string{requested, e.cfg.WarehouseType} {
		if s == "" {
			continue
		}
		if t, err := warehouse.Parse(s); err == nil {
			return t, true
		}
	}
	p := reg.Project()
	return warehouse.Infer(p.Profile, p.Vars)
}
