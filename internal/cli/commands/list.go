package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
)

// ListOptions holds options for the list command.
type ListOptions struct {
	Schema string
}

// ListOutput is the JSON form of the list command.
type ListOutput struct {
	Total   int                 `json:"total"`
	Schemas map[string][]string `json:"schemas"`
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List models grouped by schema",
		Long: `List every model of the dbt project, grouped by the schema it resolves to.
Models without a schema are listed under "default".

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all models (auto-detect output format)
  dbt-core-mcp list

  # List the models of one schema as JSON
  dbt-core-mcp list --schema marts --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Only list models in this schema")

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	groups, err := cmdCtx.Engine.ModelsBySchema(cmd.Context(), opts.Schema)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	out := ListOutput{Schemas: groups}
	for _, names := range groups {
		out.Total += len(names)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	schemas := make([]string, 0, len(groups))
	for s := range groups {
		schemas = append(schemas, s)
	}
	sort.Strings(schemas)

	r.Header(1, fmt.Sprintf("Models (%d total)", out.Total))
	for _, s := range schemas {
		r.Header(2, fmt.Sprintf("%s (%d)", s, len(groups[s])))
		for _, name := range groups[s] {
			r.Printf("- %s\n", name)
		}
		r.Println()
	}
	return nil
}
