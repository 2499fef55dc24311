// Package tools binds engine queries to MCP tool handlers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/lineage"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/search"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// ContextTools holds what the tool handlers need.
type ContextTools struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

// --- Input types ---

// ModelInput names a model for get_model_context.
type ModelInput struct {
	ModelName string `json:"model_name" jsonschema:"Name of the dbt model"`
}

// SearchInput is the query and filters of search_models.
type SearchInput struct {
	Query                 string   `json:"query" jsonschema:"Search terms matched against names, tags, descriptions, columns and meta values"`
	FilterSchema          string   `json:"filter_schema,omitempty" jsonschema:"Only return entities in this schema"`
	FilterTag             string   `json:"filter_tag,omitempty" jsonschema:"Only return entities carrying this tag"`
	FilterMaterialization string   `json:"filter_materialization,omitempty" jsonschema:"Only return models with this materialization (table, view, incremental, ephemeral)"`
	Kinds                 []string `json:"kinds,omitempty" jsonschema:"Entity kinds to search: model, source, exposure, metric (default model)"`
	Limit                 int      `json:"limit,omitempty" jsonschema:"Maximum number of results (default 20)"`
}

// LineageInput selects the model, direction and depth of get_model_lineage.
type LineageInput struct {
	ModelName string `json:"model_name" jsonschema:"Name of the model to get lineage for"`
	Direction string `json:"direction,omitempty" jsonschema:"upstream, downstream or both (default both)"`
	Depth     int    `json:"depth,omitempty" jsonschema:"How many levels to walk, 1 to 5 (default 2)"`
}

// ColumnInput names the model and column for get_column_info.
type ColumnInput struct {
	ModelName  string `json:"model_name" jsonschema:"Name of the model containing the column"`
	ColumnName string `json:"column_name" jsonschema:"Name of the column"`
}

// ListModelsInput optionally narrows list_available_models to one schema.
type ListModelsInput struct {
	SchemaFilter string `json:"schema_filter,omitempty" jsonschema:"Only list models in this schema"`
}

// RefreshInput controls refresh_context.
type RefreshInput struct {
	Force *bool `json:"force,omitempty" jsonschema:"Rebuild even when the snapshot is fresh (default true)"`
}

// DatasetMappingInput overrides the warehouse used by get_dataset_mapping.
type DatasetMappingInput struct {
	WarehouseType string `json:"warehouse_type,omitempty" jsonschema:"bigquery, snowflake, postgres, redshift, databricks, synapse or duckdb; inferred when empty"`
}

// --- Results ---

// ModelContext is a model with its immediate neighbours.
type ModelContext struct {
	Model      *core.Model    `json:"model"`
	Relation   string         `json:"relation"`
	Upstream   []lineage.Node `json:"upstream"`
	Downstream []lineage.Node `json:"downstream"`
}

// ModelList is the list_available_models result.
type ModelList struct {
	Total   int                 `json:"total"`
	Schemas map[string][]string `json:"schemas"`
}

// --- Handlers ---

func (t *ContextTools) GetDatabaseContext(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	ov, err := t.Engine.Overview(ctx)
	if err != nil {
		return t.failure("load database context", err), nil, nil
	}
	return toolJSON(ov)
}

func (t *ContextTools) GetModelContext(ctx context.Context, _ *mcp.CallToolRequest, input ModelInput) (*mcp.CallToolResult, any, error) {
	if input.ModelName == "" {
		return toolError("model_name is required"), nil, nil
	}
	m, err := t.Engine.GetModel(ctx, input.ModelName)
	if err != nil {
		return t.failure("get model", err), nil, nil
	}
	lin, err := t.Engine.GetLineage(ctx, m.Name, string(lineage.Both), 1)
	if err != nil {
		return t.failure("get lineage", err), nil, nil
	}
	return toolJSON(ModelContext{
		Model:      m,
		Relation:   m.Relation(),
		Upstream:   lin.Upstream,
		Downstream: lin.Downstream,
	})
}

func (t *ContextTools) SearchModels(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("query is required"), nil, nil
	}
	f := search.Filters{
		Schema:          input.FilterSchema,
		Tag:             input.FilterTag,
		Materialization: input.FilterMaterialization,
		Limit:           input.Limit,
	}
	for _, k := range input.Kinds {
		kind, ok := core.ParseEntityKind(k)
		if !ok {
			return toolError("unknown entity kind %q", k), nil, nil
		}
		f.Kinds = append(f.Kinds, kind)
	}
	results, err := t.Engine.SearchModels(ctx, input.Query, f)
	if err != nil {
		return t.failure("search", err), nil, nil
	}
	return toolJSON(results)
}

func (t *ContextTools) GetModelLineage(ctx context.Context, _ *mcp.CallToolRequest, input LineageInput) (*mcp.CallToolResult, any, error) {
	if input.ModelName == "" {
		return toolError("model_name is required"), nil, nil
	}
	depth := input.Depth
	if depth == 0 {
		depth = lineage.DefaultDepth
	}
	res, err := t.Engine.GetLineage(ctx, input.ModelName, input.Direction, depth)
	if err != nil {
		return t.failure("get lineage", err), nil, nil
	}
	return toolJSON(res)
}

func (t *ContextTools) GetColumnInfo(ctx context.Context, _ *mcp.CallToolRequest, input ColumnInput) (*mcp.CallToolResult, any, error) {
	if input.ModelName == "" || input.ColumnName == "" {
		return toolError("model_name and column_name are required"), nil, nil
	}
	info, err := t.Engine.GetColumn(ctx, input.ModelName, input.ColumnName)
	if err != nil {
		return t.failure("get column", err), nil, nil
	}
	return toolJSON(info)
}

func (t *ContextTools) ListAvailableModels(ctx context.Context, _ *mcp.CallToolRequest, input ListModelsInput) (*mcp.CallToolResult, any, error) {
	groups, err := t.Engine.ModelsBySchema(ctx, input.SchemaFilter)
	if err != nil {
		return t.failure("list models", err), nil, nil
	}
	out := ModelList{Schemas: groups}
	for _, names := range groups {
		out.Total += len(names)
	}
	return toolJSON(out)
}

func (t *ContextTools) RefreshContext(ctx context.Context, _ *mcp.CallToolRequest, input RefreshInput) (*mcp.CallToolResult, any, error) {
	force := input.Force == nil || *input.Force
	res, err := t.Engine.Refresh(ctx, force)
	if err != nil {
		return t.failure("refresh", err), nil, nil
	}
	return toolJSON(res)
}

func (t *ContextTools) GetDatasetMapping(ctx context.Context, _ *mcp.CallToolRequest, input DatasetMappingInput) (*mcp.CallToolResult, any, error) {
	m, err := t.Engine.GetDatasetMapping(ctx, input.WarehouseType)
	if err != nil {
		return t.failure("get dataset mapping", err), nil, nil
	}
	return toolJSON(m)
}

func (t *ContextTools) GetCacheStats(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Engine.CacheStats())
}

// failure turns an engine error into a tool error result. Lookups that
// miss and rejected arguments are expected and not logged.
func (t *ContextTools) failure(op string, err error) *mcp.CallToolResult {
	var (
		nf      *core.NotFoundError
		invalid *core.InvalidArgumentError
	)
	if !errors.As(err, &nf) && !errors.As(err, &invalid) && t.Logger != nil {
		t.Logger.Warn("tool call failed", "op", op, "error", err)
	}
	return toolError("Failed to %s: %v", op, err)
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return toolText(string(data)), nil, nil
}
