package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/testutil"
)

// runRoot executes the root command against dir and returns stdout and stderr.
func runRoot(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--project-dir", dir, "--log-level", "error"}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRoot_ListJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := runRoot(t, dir, "list", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Total   int                 `json:"total"`
		Schemas map[string][]string `json:"schemas"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Total)

	var names []string
	for _, models := range got.Schemas {
		names = append(names, models...)
	}
	assert.ElementsMatch(t, []string{"stg_customers", "stg_orders", "customer_orders"}, names)
}

func TestRoot_ModelJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := runRoot(t, dir, "model", "STG_ORDERS", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Model struct {
			Name            string `json:"name"`
			Materialization string `json:"materialization"`
		} `json:"model"`
		Downstream []struct {
			Name string `json:"name"`
		} `json:"downstream"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "stg_orders", got.Model.Name)
	assert.Equal(t, "view", got.Model.Materialization)
	require.Len(t, got.Downstream, 1)
	assert.Equal(t, "customer_orders", got.Downstream[0].Name)
}

func TestRoot_MarkdownWhenPiped(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := runRoot(t, dir, "lineage", "customer_orders", "--direction", "upstream")
	require.NoError(t, err)

	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "stg_orders")
	assert.Contains(t, out, "stg_customers")
}

func TestRoot_MappingInfersWarehouse(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := runRoot(t, dir, "mapping", "-o", "json")
	require.NoError(t, err)

	var got struct {
		WarehouseType string `json:"warehouse_type"`
		Term          string `json:"term"`
		TotalModels   int    `json:"total_models"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "bigquery", got.WarehouseType)
	assert.Equal(t, "dataset", got.Term)
	assert.Equal(t, 3, got.TotalModels)
}

func TestRoot_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown model", args: []string{"model", "nope"}, wantErr: "nope"},
		{name: "bad direction", args: []string{"lineage", "stg_orders", "--direction", "sideways"}, wantErr: "sideways"},
		{name: "bad warehouse", args: []string{"mapping", "oracle"}, wantErr: "oracle"},
		{name: "bad output", args: []string{"list", "-o", "yaml"}, wantErr: "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.SetupTestProject(t)
			_, _, err := runRoot(t, dir, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRoot_MissingProjectDir(t *testing.T) {
	_, _, err := runRoot(t, t.TempDir()+"/missing", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project directory does not exist")
}

func TestRoot_Version(t *testing.T) {
	out, _, err := runRoot(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dbt-core-mcp v"+Version)
}

func TestGetConfig_Defaults(t *testing.T) {
	config.ResetConfig()
	cfg := GetConfig(t.Context())
	assert.Equal(t, config.DefaultTransport, cfg.Transport)
	assert.Equal(t, config.DefaultMaxEntries, cfg.Cache.MaxEntries)
}
