package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/search"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Terms shorter than this are skipped when gathering SQL context.
const minIntentTermLength = 4

const maxKeyColumns = 10

func (t *ContextTools) DatabaseOverview(ctx context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	ov, err := t.Engine.Overview(ctx)
	if err != nil {
		return nil, fmt.Errorf("load database context: %w", err)
	}

	var b strings.Builder
	name := ov.Project.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "You have access to the dbt project %s.\n\n", name)
	b.WriteString("This project contains:\n")
	fmt.Fprintf(&b, "- %d models\n", ov.Stats.Models)
	fmt.Fprintf(&b, "- %d sources\n", ov.Stats.Sources)
	fmt.Fprintf(&b, "- %d exposures\n", ov.Stats.Exposures)
	fmt.Fprintf(&b, "- %d metrics\n", ov.Stats.Metrics)
	fmt.Fprintf(&b, "- %d schemas\n", len(ov.Schemas))
	if ov.WarehouseType != "" {
		fmt.Fprintf(&b, "\nThe project targets %s.\n", ov.WarehouseType)
	}
	b.WriteString(`
Tools to explore the project:
- get_database_context for a full overview
- get_model_context(model_name) for one model's columns, tests and neighbours
- search_models(query) to find relevant tables
- get_model_lineage(model_name) to follow data flow
- get_column_info(model_name, column_name) for column details
- get_dataset_mapping to see where models are built in the warehouse

Models are usually layered: staging models clean raw sources, intermediate
models transform them and marts hold business logic.
`)
	return promptResult("Overview of the dbt project", b.String()), nil
}

func (t *ContextTools) SQLHelper(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	intent := strings.TrimSpace(req.Params.Arguments["query_intent"])
	if intent == "" {
		return nil, fmt.Errorf("query_intent is required")
	}

	seen := make(map[string]struct{})
	var models []*core.Model
	for _, term := range strings.Fields(strings.ToLower(intent)) {
		if len(term) < minIntentTermLength {
			continue
		}
		results, err := t.Engine.SearchModels(ctx, term, search.Filters{Limit: 5})
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", term, err)
		}
		for _, r := range results {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			m, err := t.Engine.GetModel(ctx, r.Name)
			if err != nil {
				continue
			}
			models = append(models, m)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# SQL context for: %s\n\n", intent)
	if len(models) == 0 {
		b.WriteString("No directly relevant models found. Use search_models to explore available tables.\n")
	} else {
		b.WriteString("## Potentially relevant models\n")
		for _, m := range models {
			fmt.Fprintf(&b, "\n### %s\n", m.Name)
			fmt.Fprintf(&b, "Relation: %s\n", m.Relation())
			if m.Description != "" {
				fmt.Fprintf(&b, "Description: %s\n", m.Description)
			}
			if len(m.Columns) > 0 {
				cols := make([]string, 0, maxKeyColumns)
				for i, c := range m.Columns {
					if i == maxKeyColumns {
						break
					}
					cols = append(cols, c.Name)
				}
				fmt.Fprintf(&b, "Key columns: %s\n", strings.Join(cols, ", "))
			}
		}
	}
	b.WriteString(`
## Tips
- Use get_model_context(model_name) for complete column details
- Check get_model_lineage(model_name) to find related tables
- Use search_models(term) to find more relevant models
`)
	return promptResult("Models relevant to a SQL query", b.String()), nil
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}
}
