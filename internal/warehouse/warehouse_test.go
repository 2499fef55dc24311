package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

func TestParse(t *testing.T) {
	got, err := Parse(" BigQuery ")
	require.NoError(t, err)
	assert.Equal(t, BigQuery, got)

	_, err = Parse("oracle")
	var invalid *core.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, List(), invalid.Allowed)
	assert.ErrorContains(t, err, `invalid warehouse type "oracle" (want bigquery,`)
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		vars    map[string]string
		want    Type
		ok      bool
	}{
		{name: "profile bigquery", profile: "acme_bigquery", want: BigQuery, ok: true},
		{name: "profile bq abbreviation", profile: "analytics_bq", want: BigQuery, ok: true},
		{name: "profile snowflake", profile: "Snowflake_Prod", want: Snowflake, ok: true},
		{name: "profile pg", profile: "pg_local", want: Postgres, ok: true},
		{name: "profile duckdb", profile: "jaffle_duckdb", want: DuckDB, ok: true},
		{name: "vars warehouse key", profile: "jaffle_shop", vars: map[string]string{"warehouse_type": "bigquery"}, want: BigQuery, ok: true},
		{name: "vars adapter key", vars: map[string]string{"dbt_adapter": "Databricks"}, want: Databricks, ok: true},
		{name: "unrelated vars ignored", vars: map[string]string{"start_date": "snowflake"}},
		{name: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Infer(tt.profile, tt.vars)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatasetName(t *testing.T) {
	tests := []struct {
		typ       Type
		model     core.Model
		defaultDB string
		want      string
	}{
		{BigQuery, core.Model{Schema: "Marts", Database: "acme-prod"}, "", "acme-prod.Marts"},
		{BigQuery, core.Model{Schema: "marts"}, "acme", "acme.marts"},
		{Snowflake, core.Model{Schema: "marts", Database: "analytics"}, "", "ANALYTICS.MARTS"},
		{Snowflake, core.Model{}, "", "PUBLIC"},
		{Postgres, core.Model{Schema: "Marts", Database: "Warehouse"}, "", "warehouse.marts"},
		{Databricks, core.Model{Schema: "silver"}, "main", "main.silver"},
		{DuckDB, core.Model{}, "", "main"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.want, func(t *testing.T) {
			cfg, ok := Get(tt.typ)
			require.True(t, ok)
			assert.Equal(t, tt.want, cfg.DatasetName(&tt.model, tt.defaultDB))
		})
	}
}

func TestTerms(t *testing.T) {
	bq, _ := Get(BigQuery)
	assert.Equal(t, "dataset", bq.Term)
	pg, _ := Get(Postgres)
	assert.Equal(t, "schema", pg.Term)
	assert.Len(t, List(), 7)
}
