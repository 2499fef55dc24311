package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/lineage"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Direction string
	Depth     int
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage <model>",
		Short: "Show lineage for a model",
		Long: `Display the upstream dependencies and downstream dependents of a model.

The lineage shows how data flows through your models, helping you understand
the impact of changes. Cycles and unresolved references are reported.`,
		Example: `  # Show lineage two levels in both directions
  dbt-core-mcp lineage stg_customers

  # Only upstream, as deep as possible
  dbt-core-mcp lineage stg_customers --direction upstream --depth 5

  # Output as JSON
  dbt-core-mcp lineage stg_customers --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Direction, "direction", string(lineage.Both), "upstream, downstream or both")
	cmd.Flags().IntVar(&opts.Depth, "depth", lineage.DefaultDepth, fmt.Sprintf("Levels to walk (1-%d)", lineage.MaxDepth))

	_ = cmd.RegisterFlagCompletionFunc("direction", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(lineage.Upstream), string(lineage.Downstream), string(lineage.Both)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runLineage(cmd *cobra.Command, name string, opts *LineageOptions) error {
	dir, err := lineage.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cmdCtx.Engine.GetLineage(cmd.Context(), name, string(dir), opts.Depth)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Header(1, fmt.Sprintf("Lineage for %s (depth %d)", res.Root, res.Depth))
	if dir != lineage.Downstream {
		lineageSection(r, "Upstream", res.Upstream)
	}
	if dir != lineage.Upstream {
		lineageSection(r, "Downstream", res.Downstream)
	}
	if len(res.CyclesDetected) > 0 {
		r.Warning("cycle detected through " + strings.Join(res.CyclesDetected, ", "))
	}
	for _, d := range res.Dangling {
		r.Warning(fmt.Sprintf("%s references unknown %s %q: %s", d.From, d.Kind, d.Reference, d.Reason))
	}
	return nil
}

func lineageSection(r *output.Renderer, title string, nodes []lineage.Node) {
	r.Header(2, fmt.Sprintf("%s (%d)", title, len(nodes)))
	for _, n := range nodes {
		r.Printf("%s- %s %s\n", strings.Repeat("  ", n.Depth-1), n.Name, r.Muted("["+string(n.Kind)+"]"))
	}
	r.Println()
}
