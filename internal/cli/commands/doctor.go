package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, markdown, json
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check how well the project is documented and tested",
		Long: `Analyze the project's metadata and report gaps an assistant will trip over.

The report includes:
- Project summary (models, sources, exposures, lineage shape)
- Checks grouped by category (Documentation, Testing, Lineage, Parsing)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  dbt-core-mcp doctor

  # Output as JSON
  dbt-core-mcp doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	Project   string `json:"project"`
	Models    int    `json:"models"`
	Sources   int    `json:"sources"`
	Exposures int    `json:"exposures"`
	Metrics   int    `json:"metrics"`
	Columns   int    `json:"columns"`
	RootCount int    `json:"root_count"`
	LeafCount int    `json:"leaf_count"`
	EdgeCount int    `json:"edge_count"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

// doctorRule is one project check. Check returns one detail line per issue.
type doctorRule struct {
	ID             string
	Name           string
	Group          string
	Error          bool
	Recommendation string
	Check          func(reg *registry.Registry, res *engine.RefreshResult) []string
}

var doctorRules = []doctorRule{
	{
		ID: "DOC01", Name: "Models have descriptions", Group: "documentation",
		Recommendation: "Describe undocumented models so search and summaries have text to work with",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			var out []string
			for _, m := range reg.Models() {
				if strings.TrimSpace(m.Description) == "" {
					out = append(out, m.Name)
				}
			}
			return out
		},
	},
	{
		ID: "DOC02", Name: "Columns have descriptions", Group: "documentation",
		Recommendation: "Add column descriptions, starting with the most referenced models",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			var out []string
			for _, m := range reg.Models() {
				for _, c := range m.Columns {
					if strings.TrimSpace(c.Description) == "" {
						out = append(out, m.Name+"."+c.Name)
					}
				}
			}
			return out
		},
	},
	{
		ID: "DOC03", Name: "Sources have descriptions", Group: "documentation",
		Recommendation: "Describe sources so their origin is clear to downstream readers",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			var out []string
			for _, s := range reg.Sources() {
				if strings.TrimSpace(s.Description) == "" {
					out = append(out, s.Name)
				}
			}
			return out
		},
	},
	{
		ID: "DOC04", Name: "Columns declare data types", Group: "documentation",
		Recommendation: "Declare data_type on columns so column lookups report types",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			var out []string
			for _, m := range reg.Models() {
				for _, c := range m.Columns {
					if c.DataType == "" {
						out = append(out, m.Name+"."+c.Name)
					}
				}
			}
			return out
		},
	},
	{
		ID: "TST01", Name: "Models are tested", Group: "testing",
		Recommendation: "Add at least unique and not_null tests to each model's key column",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			var out []string
			for _, m := range reg.Models() {
				if !hasTests(m) {
					out = append(out, m.Name)
				}
			}
			return out
		},
	},
	{
		ID: "LIN01", Name: "References resolve", Group: "lineage", Error: true,
		Recommendation: "Fix ref() and source() calls that point at missing or disabled entities",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			var out []string
			for _, d := range reg.AllDangling() {
				out = append(out, fmt.Sprintf("%s -> %s (%s)", d.From, d.Reference, d.Reason))
			}
			return out
		},
	},
	{
		ID: "LIN02", Name: "Dependencies are acyclic", Group: "lineage", Error: true,
		Recommendation: "Break dependency cycles; dbt refuses to build a cyclic project",
		Check: func(reg *registry.Registry, _ *engine.RefreshResult) []string {
			if cyclic, path := reg.Graph().HasCycle(); cyclic {
				return []string{strings.Join(path, " -> ")}
			}
			return nil
		},
	},
	{
		ID: "PAR01", Name: "Documents parse cleanly", Group: "parsing", Error: true,
		Recommendation: "Fix YAML errors; affected documents are left out of the index",
		Check: func(_ *registry.Registry, res *engine.RefreshResult) []string {
			out := make([]string, 0, len(res.DocumentErrors))
			for _, de := range res.DocumentErrors {
				out = append(out, fmt.Sprintf("%s:%d:%d: %s", de.Path, de.Line, de.Column, de.Message))
			}
			return out
		},
	},
	{
		ID: "PAR02", Name: "No parse warnings", Group: "parsing",
		Recommendation: "Resolve parse warnings such as malformed tests and unknown severities",
		Check: func(reg *registry.Registry, res *engine.RefreshResult) []string {
			return collectWarnings(reg, res)
		},
	},
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	res, err := cmdCtx.Engine.Refresh(cmd.Context(), false)
	if err != nil {
		return fmt.Errorf("failed to index project: %w", err)
	}
	reg := cmdCtx.Engine.Snapshot()
	if reg == nil || len(reg.Models()) == 0 {
		r.Warning("No models found in project")
		return nil
	}

	doctorOutput := buildDoctorOutput(reg, res)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(doctorOutput)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, doctorOutput)
	default:
		return renderDoctorText(r, doctorOutput)
	}
}

func buildDoctorOutput(reg *registry.Registry, res *engine.RefreshResult) *DoctorOutput {
	summary := buildProjectSummary(reg)

	healthChecks := make([]HealthCheck, 0, len(doctorRules))
	issues := 0
	for _, rule := range doctorRules {
		details := rule.Check(reg, res)
		status := "pass"
		if len(details) > 0 {
			status = "warn"
			if rule.Error {
				status = "error"
			}
		}
		issues += len(details)
		healthChecks = append(healthChecks, HealthCheck{
			RuleID:     rule.ID,
			Name:       rule.Name,
			Group:      rule.Group,
			Status:     status,
			IssueCount: len(details),
			Details:    details,
		})
	}

	// Sort health checks by group then by rule ID
	sort.SliceStable(healthChecks, func(i, j int) bool {
		if healthChecks[i].Group != healthChecks[j].Group {
			return healthChecks[i].Group < healthChecks[j].Group
		}
		return healthChecks[i].RuleID < healthChecks[j].RuleID
	})

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    healthChecks,
		Score:           calculateHealthScore(healthChecks, summary.Models),
		Recommendations: generateRecommendations(healthChecks),
		IssueCount:      issues,
	}
}

func buildProjectSummary(reg *registry.Registry) ProjectSummary {
	stats := reg.Stats()
	summary := ProjectSummary{
		Project:   reg.Project().Name,
		Models:    stats.Models,
		Sources:   stats.Sources,
		Exposures: stats.Exposures,
		Metrics:   stats.Metrics,
	}
	for _, m := range reg.Models() {
		summary.Columns += len(m.Columns)
	}
	if g := reg.Graph(); g != nil {
		summary.EdgeCount = g.EdgeCount()
		summary.RootCount = len(g.GetRoots())
		summary.LeafCount = len(g.GetLeaves())
	}
	return summary
}

func hasTests(m *core.Model) bool {
	if len(m.Tests) > 0 {
		return true
	}
	for _, c := range m.Columns {
		if len(c.Tests) > 0 {
			return true
		}
	}
	return false
}

// collectWarnings gathers entity and document warnings, deduplicated.
func collectWarnings(reg *registry.Registry, res *engine.RefreshResult) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ws []core.ParseWarning) {
		for _, w := range ws {
			s := w.String()
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	add(res.Warnings)
	for _, m := range reg.Models() {
		add(m.Warnings)
	}
	for _, s := range reg.Sources() {
		add(s.Warnings)
	}
	sort.Strings(out)
	return out
}

// calculateHealthScore computes a health score from 0-100.
// More models means each individual issue has less impact; errors count double.
func calculateHealthScore(checks []HealthCheck, modelCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if modelCount > 10 {
		basePenalty = 3.0
	}
	if modelCount > 50 {
		basePenalty = 2.0
	}
	if modelCount > 100 {
		basePenalty = 1.0
	}

	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= float64(check.IssueCount) * basePenalty * 2
		case "warn":
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return int(score)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		if rec := getRecommendation(check.RuleID); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}

	// Limit to top 5 recommendations
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}

	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	for _, rule := range doctorRules {
		if rule.ID == ruleID {
			return rule.Recommendation
		}
	}
	return ""
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()
	styled := func(s lipgloss.Style, text string) string {
		if r.IsTTY() {
			return s.Render(text)
		}
		return text
	}

	r.Println("")
	r.Println(styled(styles.Header, "Project Health Report: "+out.Summary.Project))
	r.Println(styled(styles.Muted, strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styled(styles.Key, "Project Summary"))
	r.Printf("   Models: %d | Sources: %d | Exposures: %d | Metrics: %d\n",
		out.Summary.Models, out.Summary.Sources, out.Summary.Exposures, out.Summary.Metrics)
	r.Printf("   Columns: %d | Roots: %d | Leaves: %d | Edges: %d\n",
		out.Summary.Columns, out.Summary.RootCount, out.Summary.LeafCount, out.Summary.EdgeCount)
	r.Println("")

	r.Println(styled(styles.Key, "Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styled(styles.Key, "   "+titleCaser.String(currentGroup)))
			r.Println(styled(styles.Muted, "   "+strings.Repeat("-", 40)))
		}

		icon := styled(styles.Success, "✓")
		switch check.Status {
		case "warn":
			icon = styled(styles.Warning, "!")
		case "error":
			icon = styled(styles.Error, "✗")
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		// Show first 3 details for issues
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styled(styles.Muted, fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styled(styles.Muted, "       - "+detail))
		}
	}
	r.Println("")

	r.Println(styled(styles.Muted, strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", styled(scoreStyle, fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styled(styles.Key, "Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# Project Health Report: " + out.Summary.Project)
	r.Println("")

	r.Println("## Project Summary")
	r.Println("")
	r.Printf("- **Models**: %d\n", out.Summary.Models)
	r.Printf("- **Sources**: %d\n", out.Summary.Sources)
	r.Printf("- **Exposures**: %d\n", out.Summary.Exposures)
	r.Printf("- **Metrics**: %d\n", out.Summary.Metrics)
	r.Printf("- **Columns**: %d\n", out.Summary.Columns)
	r.Printf("- **Root Models**: %d\n", out.Summary.RootCount)
	r.Printf("- **Leaf Models**: %d\n", out.Summary.LeafCount)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case "warn":
			status = "WARN"
		case "error":
			status = "ERROR"
		}

		line := fmt.Sprintf("- **[%s]** %s: %s", status, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			line += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println(line)

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
