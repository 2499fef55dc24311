package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		modelCount int
		minScore   int
		maxScore   int
	}{
		{
			name:       "no checks returns 100",
			checks:     nil,
			modelCount: 10,
			minScore:   100,
			maxScore:   100,
		},
		{
			name: "all passing returns 100",
			checks: []HealthCheck{
				{RuleID: "DOC01", Status: "pass", IssueCount: 0},
				{RuleID: "TST01", Status: "pass", IssueCount: 0},
			},
			modelCount: 10,
			minScore:   100,
			maxScore:   100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{RuleID: "DOC01", Status: "pass", IssueCount: 0},
				{RuleID: "TST01", Status: "warn", IssueCount: 2},
			},
			modelCount: 10,
			minScore:   80,
			maxScore:   99,
		},
		{
			name: "errors reduce score more",
			checks: []HealthCheck{
				{RuleID: "LIN01", Status: "error", IssueCount: 2},
			},
			modelCount: 10,
			minScore:   70,
			maxScore:   95,
		},
		{
			name: "more models means less impact per issue",
			checks: []HealthCheck{
				{RuleID: "DOC01", Status: "warn", IssueCount: 5},
			},
			modelCount: 100,
			minScore:   90,
			maxScore:   100,
		},
		{
			name: "many issues can reduce to 0",
			checks: []HealthCheck{
				{RuleID: "LIN01", Status: "error", IssueCount: 20},
				{RuleID: "PAR01", Status: "error", IssueCount: 20},
			},
			modelCount: 5,
			minScore:   0,
			maxScore:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calculateHealthScore(tt.checks, tt.modelCount)
			assert.GreaterOrEqual(t, score, tt.minScore, "score should be >= %d", tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore, "score should be <= %d", tt.maxScore)
		})
	}
}

func TestGetRecommendation(t *testing.T) {
	for _, rule := range doctorRules {
		t.Run(rule.ID, func(t *testing.T) {
			assert.NotEmpty(t, getRecommendation(rule.ID))
		})
	}
	assert.Empty(t, getRecommendation("UNKNOWN"))
}

func TestGenerateRecommendations_LimitTo5(t *testing.T) {
	checks := make([]HealthCheck, 0, len(doctorRules))
	for _, rule := range doctorRules {
		checks = append(checks, HealthCheck{RuleID: rule.ID, Status: "warn", IssueCount: 1})
	}

	recommendations := generateRecommendations(checks)
	assert.Len(t, recommendations, 5)
	assert.Equal(t, getRecommendation(doctorRules[0].ID), recommendations[0])
}

const doctorProject = `
name: shop
version: "1.0"
`

const doctorSchema = `
version: 2
models:
  - name: orders
    description: One row per order
    columns:
      - name: order_id
        description: Primary key
        data_type: integer
        tests: [unique, not_null]
  - name: customers
sources:
  - name: raw
    tables:
      - name: orders
`

func buildTestReport(t *testing.T) *DoctorOutput {
	t.Helper()
	eng, err := engine.New(engine.Config{Fetcher: fetch.MapFetcher{
		"dbt_project.yml":          []byte(doctorProject),
		"models/schema.yml":        []byte(doctorSchema),
		"models/orders.sql":        []byte("select * from {{ ref('customers') }} join {{ source('raw', 'orders') }} using (id)"),
		"models/customers.sql":     []byte("select * from {{ ref('missing_model') }}"),
		"models/notes/README.md":   []byte("ignored"),
		"analysis/scratchpad.sql":  []byte("select 1"),
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	res, err := eng.Refresh(context.Background(), true)
	require.NoError(t, err)
	reg := eng.Snapshot()
	require.NotNil(t, reg)
	return buildDoctorOutput(reg, res)
}

func TestBuildDoctorOutput(t *testing.T) {
	report := buildTestReport(t)

	assert.Equal(t, "shop", report.Summary.Project)
	assert.Equal(t, 2, report.Summary.Models)
	assert.Equal(t, 1, report.Summary.Sources)
	assert.Equal(t, 1, report.Summary.Columns)

	byID := make(map[string]HealthCheck)
	for _, c := range report.HealthChecks {
		byID[c.RuleID] = c
	}
	require.Len(t, byID, len(doctorRules))

	tests := []struct {
		id      string
		status  string
		details []string
	}{
		{id: "DOC01", status: "warn", details: []string{"customers"}},
		{id: "DOC02", status: "pass"},
		{id: "DOC03", status: "warn", details: []string{"raw"}},
		{id: "DOC04", status: "pass"},
		{id: "TST01", status: "warn", details: []string{"customers"}},
		{id: "LIN02", status: "pass"},
		{id: "PAR01", status: "pass"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			c := byID[tt.id]
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, tt.details, c.Details)
		})
	}

	lin := byID["LIN01"]
	assert.Equal(t, "error", lin.Status)
	require.Len(t, lin.Details, 1)
	assert.Contains(t, lin.Details[0], "missing_model")

	assert.Less(t, report.Score, 100)
	assert.NotEmpty(t, report.Recommendations)
}

func TestRenderDoctorMarkdown(t *testing.T) {
	report := buildTestReport(t)

	var out bytes.Buffer
	r := output.NewRendererWithTTY(&out, &bytes.Buffer{}, false, output.ModeMarkdown)
	require.NoError(t, renderDoctorMarkdown(r, report))

	md := out.String()
	assert.Contains(t, md, "# Project Health Report: shop")
	assert.Contains(t, md, "### Documentation")
	assert.Contains(t, md, "- **[ERROR]** LIN01: References resolve (1 issues)")
	assert.Contains(t, md, "- **[PASS]** LIN02: Dependencies are acyclic")
}

func TestRenderDoctorText_NoANSIWithoutTTY(t *testing.T) {
	report := buildTestReport(t)

	var out bytes.Buffer
	r := output.NewRendererWithTTY(&out, &bytes.Buffer{}, false, output.ModeText)
	require.NoError(t, renderDoctorText(r, report))

	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "Health Score:")
}
