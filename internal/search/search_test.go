package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

func snapshot(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(registry.Input{
		Models: []*core.Model{
			{Name: "revenue_daily", Schema: "marts", Materialization: core.MaterializationTable, Tags: []string{"finance"}, Enabled: true},
			{Name: "revenue_legacy", Schema: "staging", Materialization: core.MaterializationView, Enabled: true},
			{Name: "orders", Schema: "marts", Materialization: core.MaterializationTable, Description: "Orders with revenue", Enabled: true},
			{Name: "customers", Schema: "marts", Materialization: core.MaterializationTable, Enabled: true,
				Columns: []core.Column{{Name: "lifetime_revenue"}}},
			{Name: "revenue", Schema: "marts", Materialization: core.MaterializationView, Enabled: true},
			{Name: "payments", Schema: "marts", Materialization: core.MaterializationTable, Enabled: true,
				Meta: map[string]string{"domain": "revenue"}},
		},
		Sources:   []*core.Source{{Name: "revenue_raw", Schema: "raw"}},
		Exposures: []*core.Exposure{{Name: "revenue_dashboard"}},
	}, registry.Options{})
	require.NoError(t, err)
	return reg
}

func names(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func TestSearch_SchemaFilter(t *testing.T) {
	reg, err := registry.Build(registry.Input{Models: []*core.Model{
		{Name: "revenue_daily", Schema: "marts", Tags: []string{"finance"}, Enabled: true},
		{Name: "revenue_legacy", Schema: "staging", Enabled: true},
	}}, registry.Options{})
	require.NoError(t, err)

	got := Search(reg, "revenue", Filters{Schema: "marts"})
	assert.Equal(t, []string{"revenue_daily"}, names(got))
}

func TestSearch_Ranking(t *testing.T) {
	reg := snapshot(t)

	got := Search(reg, "revenue", Filters{Kinds: []core.EntityKind{core.KindModel}})
	// exact, then name tokens (ties by name), then description, column, meta
	assert.Equal(t, []string{"revenue", "revenue_daily", "revenue_legacy", "orders", "customers", "payments"}, names(got))
	assert.True(t, got[0].Exact)
	assert.Equal(t, WeightExact+WeightName, got[0].Score)
	assert.Equal(t, []string{"exact", "name"}, got[0].Matched)
	assert.Equal(t, WeightDescription, got[3].Score)
	assert.Equal(t, WeightColumn, got[4].Score)
	assert.Equal(t, WeightMeta, got[5].Score)
}

func TestSearch_ExactMatchIsMonotonic(t *testing.T) {
	reg := snapshot(t)

	before := names(Search(reg, "finance", Filters{}))
	require.Equal(t, []string{"revenue_daily"}, before)

	// Adding the exact name of orders lifts it to the top.
	after := names(Search(reg, "finance orders", Filters{}))
	assert.Equal(t, "orders", after[0])
	assert.Contains(t, after, "revenue_daily")

	whole := Search(reg, "Revenue_Daily", Filters{})
	require.NotEmpty(t, whole)
	assert.Equal(t, "revenue_daily", whole[0].Name)
	assert.True(t, whole[0].Exact)
}

func TestSearch_Filters(t *testing.T) {
	reg := snapshot(t)

	tests := []struct {
		name string
		f    Filters
		want []string
	}{
		{
			name: "tag",
			f:    Filters{Tag: "FINANCE"},
			want: []string{"revenue_daily"},
		},
		{
			name: "materialization excludes sources and exposures",
			f:    Filters{Materialization: "view"},
			want: []string{"revenue", "revenue_legacy"},
		},
		{
			name: "schema excludes exposures",
			f:    Filters{Schema: "raw"},
			want: []string{"revenue_raw"},
		},
		{
			name: "combined",
			f:    Filters{Schema: "marts", Materialization: "table", Tag: "finance"},
			want: []string{"revenue_daily"},
		},
		{
			name: "kinds",
			f:    Filters{Kinds: []core.EntityKind{core.KindExposure}},
			want: []string{"revenue_dashboard"},
		},
		{
			name: "limit",
			f:    Filters{Limit: 2},
			want: []string{"revenue", "revenue_daily"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Search(reg, "revenue", tt.f)))
		})
	}
}

func TestSearch_NoTokens(t *testing.T) {
	reg := snapshot(t)
	assert.Empty(t, Search(reg, "  ...  ", Filters{}))
	assert.Empty(t, Search(reg, "nothing_matches_this", Filters{}))
}
