package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	NodeCount() int
	EdgeCount() int
}

// DAGOutput is the JSON form of the dag command.
type DAGOutput struct {
	Levels     []DAGLevel `json:"levels"`
	TotalNodes int        `json:"total_nodes"`
	TotalEdges int        `json:"total_edges"`
}

// DAGLevel holds the entities at one distance from the roots.
type DAGLevel struct {
	Level int       `json:"level"`
	Nodes []DAGNode `json:"nodes"`
}

// DAGNode is one entity with its direct neighbours.
type DAGNode struct {
	ID        string   `json:"id"`
	DependsOn []string `json:"depends_on"`
	UsedBy    []string `json:"used_by"`
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the dependency graph",
		Long: `Display the dependency graph of every source, model, exposure and metric.

Entities are grouped by level: level 0 holds entities with no upstream
dependency, and each later level depends only on earlier ones. A cyclic
project cannot be levelled; use "doctor" to find the cycle.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG
  dbt-core-mcp dag

  # Output as JSON
  dbt-core-mcp dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	reg, err := cmdCtx.Engine.Registry(cmd.Context())
	if err != nil {
		return err
	}
	graph := reg.Graph()

	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to level dependency graph: %w", err)
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(buildDAGOutput(graph, levels))
	case output.ModeMarkdown:
		return dagMarkdown(r, graph, levels)
	default:
		return dagText(r, graph, levels)
	}
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Header(2, fmt.Sprintf("Level %d:", i))
		for _, id := range level {
			r.Printf("  %s\n", id)
			if deps := graph.GetParents(id); len(deps) > 0 {
				r.Printf("    %s %s\n", r.Muted("depends on:"), strings.Join(deps, ", "))
			}
			if children := graph.GetChildren(id); len(children) > 0 {
				r.Printf("    %s %s\n", r.Muted("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(r.Muted(fmt.Sprintf("Total: %d entities, %d dependencies", graph.NodeCount(), graph.EdgeCount())))

	return nil
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Roots)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, id := range level {
			r.Printf("- %s\n", id)
			if deps := graph.GetParents(id); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := graph.GetChildren(id); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Entities", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))

	return nil
}

func buildDAGOutput(graph GraphQuerier, levels [][]string) DAGOutput {
	out := DAGOutput{
		Levels:     make([]DAGLevel, 0, len(levels)),
		TotalNodes: graph.NodeCount(),
		TotalEdges: graph.EdgeCount(),
	}
	for i, level := range levels {
		l := DAGLevel{Level: i, Nodes: make([]DAGNode, 0, len(level))}
		for _, id := range level {
			l.Nodes = append(l.Nodes, DAGNode{
				ID:        id,
				DependsOn: graph.GetParents(id),
				UsedBy:    graph.GetChildren(id),
			})
		}
		out.Levels = append(out.Levels, l)
	}
	return out
}
