package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

const shopProject = `
name: shop
version: "1.0"
profile: shop_bigquery
model-paths: ["models"]
vars:
  warehouse_type: bigquery
models:
  shop:
    +materialized: view
    staging:
      +schema: staging
      +tags: [staging]
    marts:
      finance:
        +materialized: table
        +meta:
          owner: finance-team
      core:
        +schema: marts
        +enabled: true
`

func mustResolver(t *testing.T, content string, opts ResolverOptions) *Resolver {
	t.Helper()
	m, err := ParseManifest("dbt_project.yml", []byte(content))
	require.NoError(t, err)
	return NewResolver(m, opts)
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest("dbt_project.yml", []byte(shopProject))
	require.NoError(t, err)

	assert.Equal(t, "shop", m.Name)
	assert.Equal(t, "shop_bigquery", m.Profile)
	assert.Equal(t, []string{"models"}, m.ModelPaths)
	assert.Equal(t, "bigquery", m.Vars["warehouse_type"])

	require.Contains(t, m.Nodes, "shop.marts.finance")
	fin := m.Nodes["shop.marts.finance"].Config
	require.NotNil(t, fin.Materialized)
	assert.Equal(t, core.MaterializationTable, *fin.Materialized)
	assert.Equal(t, map[string]string{"owner": "finance-team"}, fin.Meta)
}

func TestParseManifest_DefaultModelPaths(t *testing.T) {
	m, err := ParseManifest("dbt_project.yml", []byte("name: tiny\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"models"}, m.ModelPaths)
	assert.Contains(t, m.Nodes, "")
}

func TestResolver_Effective(t *testing.T) {
	r := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "analytics"})

	tests := []struct {
		name     string
		path     string
		wantMat  core.Materialization
		wantSch  string
		wantTags []string
		wantMeta map[string]string
	}{
		{
			name:     "root default applies",
			path:     "shop.intermediate.int_orders",
			wantMat:  core.MaterializationView,
			wantSch:  "analytics",
			wantTags: []string{},
			wantMeta: map[string]string{},
		},
		{
			name:     "directory schema and tags",
			path:     "shop.staging.stg_orders",
			wantMat:  core.MaterializationView,
			wantSch:  "staging",
			wantTags: []string{"staging"},
			wantMeta: map[string]string{},
		},
		{
			name:     "two levels deep override wins",
			path:     "shop.marts.finance.revenue_daily",
			wantMat:  core.MaterializationTable,
			wantSch:  "analytics",
			wantTags: []string{},
			wantMeta: map[string]string{"owner": "finance-team"},
		},
		{
			name:     "unknown project falls back to fixed defaults",
			path:     "other.thing",
			wantMat:  core.MaterializationView,
			wantSch:  "analytics",
			wantTags: []string{},
			wantMeta: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff := r.Effective(tt.path)
			assert.Equal(t, tt.wantMat, eff.Materialization)
			assert.Equal(t, tt.wantSch, eff.Schema)
			assert.Equal(t, tt.wantTags, eff.Tags)
			assert.Equal(t, tt.wantMeta, eff.Meta)
			assert.True(t, eff.Enabled)
		})
	}
}

func TestResolver_EffectiveIsDeterministic(t *testing.T) {
	r := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "analytics"})
	first := r.Effective("shop.marts.finance.revenue_daily")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Effective("shop.marts.finance.revenue_daily"))
	}

	// mutating a result must not leak into the resolver
	first.Meta["owner"] = "someone-else"
	first.Tags = append(first.Tags, "x")
	again := r.Effective("shop.marts.finance.revenue_daily")
	assert.Equal(t, "finance-team", again.Meta["owner"])
	assert.Empty(t, again.Tags)
}

func TestResolver_SchemaOverrideWins(t *testing.T) {
	r := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "analytics", SchemaOverride: "pr_1234"})
	for _, p := range []string{"shop.staging.stg_orders", "shop.marts.core.orders", "shop.x"} {
		assert.Equal(t, "pr_1234", r.Effective(p).Schema, p)
	}
}

func TestResolver_SchemaStrategy(t *testing.T) {
	r := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "dbt_alice", SchemaStrategy: SchemaDBT})
	assert.Equal(t, "dbt_alice_staging", r.Effective("shop.staging.stg_orders").Schema)
	assert.Equal(t, "dbt_alice", r.Effective("shop.marts.finance.revenue").Schema)
}

func TestResolver_TargetExpressions(t *testing.T) {
	const project = `
name: shop
models:
  shop:
    +materialized: "{{ 'table' if target.name == 'prod' else 'view' }}"
    staging:
      +schema: "stg_{{ target.name }}"
`
	prod := mustResolver(t, project, ResolverOptions{Target: "prod"})
	dev := mustResolver(t, project, ResolverOptions{Target: "dev"})

	assert.Equal(t, core.MaterializationTable, prod.Effective("shop.orders").Materialization)
	assert.Equal(t, core.MaterializationView, dev.Effective("shop.orders").Materialization)
	assert.Equal(t, "stg_dev", dev.Effective("shop.staging.stg_orders").Schema)
}

func TestResolver_NilManifest(t *testing.T) {
	r := NewResolver(nil, ResolverOptions{DefaultSchema: "public"})
	eff := r.Effective("anything.at.all")
	assert.Equal(t, core.MaterializationView, eff.Materialization)
	assert.Equal(t, "public", eff.Schema)
}

func TestResolver_Fingerprint(t *testing.T) {
	a := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "analytics"})
	b := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "analytics"})
	c := mustResolver(t, shopProject, ResolverOptions{DefaultSchema: "analytics", Target: "prod"})

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseManifest_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "alias to enclosing node",
			content: `
name: shop
models:
  shop: &root
    +materialized: view
    marts:
      again: *root
`,
		},
		{
			name: "merge of enclosing node",
			content: `
name: shop
models:
  shop: &root
    marts:
      <<: *root
`,
		},
		{
			name: "contradictory plus and bare key",
			content: `
name: shop
models:
  shop:
    +materialized: table
    materialized: view
`,
		},
		{
			name: "non scalar materialization",
			content: `
name: shop
models:
  shop:
    +materialized: [table, view]
`,
		},
		{
			name: "enabled is not a bool",
			content: `
name: shop
models:
  +enabled: sometimes
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest("dbt_project.yml", []byte(tt.content))
			require.Error(t, err)
			var cfgErr *core.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T: %v", err, err)
		})
	}
}

func TestParseManifest_SiblingAliasIsNotACycle(t *testing.T) {
	const project = `
name: shop
models:
  shop:
    staging: &layer
      +materialized: table
    marts: *layer
`
	r := mustResolver(t, project, ResolverOptions{})
	assert.Equal(t, core.MaterializationTable, r.Effective("shop.marts.orders").Materialization)
}

func TestParseManifest_MergeKeyCycles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
		column  int
	}{
		{
			name:    "self merge",
			content: "name: shop\nmodels:\n  shop: &shop\n    +materialized: table\n    <<: *shop\n",
			line:    5,
			column:  5,
		},
		{
			name:    "mutual merge",
			content: "name: shop\nmodels:\n  shop: &shop\n    staging: &staging\n      <<: *shop\n    <<: *staging\n",
			line:    5,
			column:  7,
		},
		{
			name:    "self merge in vars",
			content: "name: shop\nvars: &v\n  region: eu\n  <<: *v\n",
			line:    4,
			column:  3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest("dbt_project.yml", []byte(tt.content))
			require.Error(t, err)
			var pe *core.ParseError
			require.True(t, errors.As(err, &pe), "got %T: %v", err, err)
			assert.Equal(t, "dbt_project.yml", pe.Path)
			assert.Equal(t, tt.line, pe.Line)
			assert.Equal(t, tt.column, pe.Column)
		})
	}
}

func TestParseManifest_SharedMergeKey(t *testing.T) {
	const project = `
name: shop
x-defaults: &defaults
  +materialized: table
  +tags: [nightly]
models:
  shop:
    staging:
      <<: *defaults
    marts:
      <<: *defaults
      +materialized: incremental
`
	r := mustResolver(t, project, ResolverOptions{})

	staging := r.Effective("shop.staging.stg_orders")
	assert.Equal(t, core.MaterializationTable, staging.Materialization)
	assert.Equal(t, []string{"nightly"}, staging.Tags)

	marts := r.Effective("shop.marts.orders")
	assert.Equal(t, core.MaterializationIncremental, marts.Materialization, "explicit keys win over merged ones")
	assert.Equal(t, []string{"nightly"}, marts.Tags)
}

func TestPairs_SkipsMergeCycles(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`m: &m
  a: 1
  <<: *m
`), &doc))

	m := Lookup(doc.Content[0], "m")
	pairs := Pairs(m)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].Key)
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := ParseManifest("dbt_project.yml", []byte("name: shop\nmodels:\n  shop: [unclosed\n"))
	require.Error(t, err)

	var pe *core.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "dbt_project.yml", pe.Path)
	assert.Greater(t, pe.Line, 0)
}

func TestParseManifest_LegacyBareKeys(t *testing.T) {
	const project = `
name: shop
models:
  shop:
    materialized: table
    tags: nightly
    meta:
      tier: gold
    staging:
      materialized: view
`
	r := mustResolver(t, project, ResolverOptions{})
	eff := r.Effective("shop.marts.orders")
	assert.Equal(t, core.MaterializationTable, eff.Materialization)
	assert.Equal(t, []string{"nightly"}, eff.Tags)
	assert.Equal(t, map[string]string{"tier": "gold"}, eff.Meta)
	assert.Equal(t, core.MaterializationView, r.Effective("shop.staging.stg").Materialization)
}

func TestModelPath(t *testing.T) {
	tests := []struct {
		name       string
		project    string
		modelPaths []string
		doc        string
		model      string
		want       string
	}{
		{"nested directory", "shop", []string{"models"}, "models/marts/finance/schema.yml", "revenue", "shop.marts.finance.revenue"},
		{"model path root", "shop", []string{"models"}, "models/schema.yml", "orders", "shop.orders"},
		{"custom model path", "shop", []string{"transform"}, "transform/staging/_stg.yml", "stg", "shop.staging.stg"},
		{"outside model paths", "shop", []string{"models"}, "other/x.yml", "m", "shop.other.m"},
		{"no project", "", []string{"models"}, "models/a/b.yml", "m", "a.m"},
		{"windows separators", "shop", []string{"models"}, `models\marts\schema.yml`, "m", "shop.marts.m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelPath(tt.project, tt.modelPaths, tt.doc, tt.model))
		})
	}
}
