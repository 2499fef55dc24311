package commands

import (
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
)

// NewColumnCommand creates the column command.
func NewColumnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "column <model> <column>",
		Short: "Show details of one column",
		Example: `  dbt-core-mcp column stg_orders order_id
  dbt-core-mcp column stg_orders order_id -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runColumn(cmd, args[0], args[1])
		},
	}
}

func runColumn(cmd *cobra.Command, model, column string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := cmdCtx.Engine.GetColumn(cmd.Context(), model, column)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(info)
	}

	c := info.Column
	r.Header(1, info.Model+"."+c.Name)
	if c.Description != "" {
		r.Println(c.Description)
		r.Println()
	}
	r.KeyValue("Relation", info.Relation)
	if c.DataType != "" {
		r.KeyValue("Data type", c.DataType)
	}
	r.KeyValue("Tests", output.FormatList(testNames(c.Tests)))
	r.KeyValue("Constraints", output.FormatList(c.Constraints))
	if len(c.Tags) > 0 {
		r.KeyValue("Tags", output.FormatList(c.Tags))
	}
	for _, k := range slices.Sorted(maps.Keys(c.Meta)) {
		r.KeyValue("meta."+k, c.Meta[k])
	}
	return nil
}
