package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/lineage"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// ModelOutput is the JSON form of the model command.
type ModelOutput struct {
	Model      *core.Model    `json:"model"`
	Relation   string         `json:"relation"`
	Upstream   []lineage.Node `json:"upstream"`
	Downstream []lineage.Node `json:"downstream"`
}

// NewModelCommand creates the model command.
func NewModelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "model <name>",
		Short: "Show the full definition of a model",
		Long: `Display a model's resolved configuration, columns with data types, tests
and constraints, and its immediate upstream and downstream neighbours.`,
		Example: `  dbt-core-mcp model stg_orders
  dbt-core-mcp model stg_orders --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(cmd, args[0])
		},
	}
}

func runModel(cmd *cobra.Command, name string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	m, err := cmdCtx.Engine.GetModel(ctx, name)
	if err != nil {
		return err
	}
	lin, err := cmdCtx.Engine.GetLineage(ctx, m.Name, string(lineage.Both), 1)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(ModelOutput{
			Model:      m,
			Relation:   m.Relation(),
			Upstream:   lin.Upstream,
			Downstream: lin.Downstream,
		})
	}

	r.Header(1, m.Name)
	if m.Description != "" {
		r.Println(m.Description)
		r.Println()
	}
	r.KeyValue("Relation", m.Relation())
	r.KeyValue("Materialization", string(m.Materialization))
	r.KeyValue("Document", m.DocumentPath)
	if len(m.Tags) > 0 {
		r.KeyValue("Tags", output.FormatList(m.Tags))
	}
	if m.Access != "" {
		r.KeyValue("Access", m.Access)
	}
	r.KeyValue("Upstream", output.FormatList(nodeNames(lin.Upstream)))
	r.KeyValue("Downstream", output.FormatList(nodeNames(lin.Downstream)))
	r.Println()

	r.Header(2, fmt.Sprintf("Columns (%d)", len(m.Columns)))
	rows := make([][]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		rows = append(rows, []string{c.Name, c.DataType, output.FormatList(testNames(c.Tests)), c.Description})
	}
	r.Table([]string{"Column", "Type", "Tests", "Description"}, rows)

	if len(m.Tests) > 0 {
		r.Println()
		r.Header(2, "Model tests")
		for _, t := range m.Tests {
			r.Printf("- %s (%s)\n", t.Name, t.Severity)
		}
	}
	for _, w := range m.Warnings {
		r.Warning(w.String())
	}
	return nil
}

func nodeNames(nodes []lineage.Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

func testNames(tests []core.Test) []string {
	names := make([]string, 0, len(tests))
	for _, t := range tests {
		names = append(names, t.Name)
	}
	return names
}
