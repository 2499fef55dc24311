package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/search"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// SearchOptions holds options for the search command.
type SearchOptions struct {
	Schema          string
	Tag             string
	Materialization string
	Kinds           []string
	Limit           int
}

// NewSearchCommand creates the search command.
func NewSearchCommand() *cobra.Command {
	opts := &SearchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search models by relevance",
		Long: `Rank entities by how well they match a free-text query. Names, tags,
descriptions, column names and meta values are searched; exact name matches
come first.`,
		Example: `  # Find revenue models
  dbt-core-mcp search revenue

  # Search sources and exposures too
  dbt-core-mcp search customer orders --kind model --kind source --kind exposure

  # Only incremental models in the marts schema
  dbt-core-mcp search orders --schema marts --materialization incremental`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Only return entities in this schema")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "Only return entities carrying this tag")
	cmd.Flags().StringVar(&opts.Materialization, "materialization", "", "Only return models with this materialization")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "Entity kinds to search (model, source, exposure, metric)")
	cmd.Flags().IntVar(&opts.Limit, "limit", search.DefaultLimit, "Maximum number of results")

	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"model", "source", "exposure", "metric"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *SearchOptions) error {
	f := search.Filters{
		Schema:          opts.Schema,
		Tag:             opts.Tag,
		Materialization: opts.Materialization,
		Limit:           opts.Limit,
	}
	for _, k := range opts.Kinds {
		kind, ok := core.ParseEntityKind(k)
		if !ok {
			return fmt.Errorf("unknown entity kind %q", k)
		}
		f.Kinds = append(f.Kinds, kind)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := cmdCtx.Engine.SearchModels(cmd.Context(), query, f)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(results)
	}

	r.Header(1, fmt.Sprintf("Results for %q (%d)", query, len(results)))
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		name := res.Name
		if res.Exact {
			name += " *"
		}
		rows = append(rows, []string{
			name,
			string(res.Kind),
			res.Schema,
			string(res.Materialization),
			strconv.Itoa(res.Score),
			strings.Join(res.Matched, ", "),
		})
	}
	r.Table([]string{"Name", "Kind", "Schema", "Materialization", "Score", "Matched"}, rows)
	return nil
}
