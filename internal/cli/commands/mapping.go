package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/warehouse"
)

// NewMappingCommand creates the mapping command.
func NewMappingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mapping [warehouse-type]",
		Short: "Show which dataset or schema each model is built into",
		Long: `Group persisted models by the warehouse dataset (BigQuery) or schema
(other warehouses) they are built into, using the warehouse's naming rules.

The warehouse type comes from the argument, then the warehouse_type setting
or the selected target, then the project's profile name and vars.
Ephemeral models are never built and are left out.`,
		Example: `  dbt-core-mcp mapping
  dbt-core-mcp mapping snowflake -o json`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: warehouse.List(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var typ string
			if len(args) == 1 {
				typ = args[0]
			}
			return runMapping(cmd, typ)
		},
	}
}

func runMapping(cmd *cobra.Command, typ string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := cmdCtx.Engine.GetDatasetMapping(cmd.Context(), typ)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(m)
	}

	wt := m.WarehouseType
	if wt == "" {
		wt = "unknown warehouse"
	}
	r.Header(1, fmt.Sprintf("Models by %s (%s, %d models)", m.Term, wt, m.TotalModels))

	datasets := make([]string, 0, len(m.Mappings))
	for d := range m.Mappings {
		datasets = append(datasets, d)
	}
	sort.Strings(datasets)
	rows := make([][]string, 0, len(datasets))
	for _, d := range datasets {
		rows = append(rows, []string{d, fmt.Sprint(len(m.Mappings[d])), strings.Join(m.Mappings[d], ", ")})
	}
	r.Table([]string{strings.ToUpper(m.Term[:1]) + m.Term[1:], "Count", "Models"}, rows)
	return nil
}
