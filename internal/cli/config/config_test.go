package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intconfig "github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single variable", "${TEST_VAR_ONE}", "value_one"},
		{"multiple variables", "${TEST_VAR_ONE}/${TEST_VAR_TWO}", "value_one/value_two"},
		{"variable in path", "/path/to/${TEST_VAR_ONE}/file", "/path/to/value_one/file"},
		{"unset variable stays as-is", "${UNSET_VARIABLE}", "${UNSET_VARIABLE}"},
		{"no variables", "plain string", "plain string"},
		{"empty string", "", ""},
		{"mixed set and unset", "${TEST_VAR_ONE}:${UNSET_VAR}", "value_one:${UNSET_VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

// newFlags mirrors the persistent flags of the root command.
func newFlags(t *testing.T, set map[string]string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("project-dir", "", "")
	flags.String("schema-override", "", "")
	flags.StringP("target", "t", "", "")
	flags.String("state", "", "")
	flags.String("transport", "", "")
	flags.Bool("watch", false, "")
	for name, value := range set {
		require.NoError(t, flags.Set(name, value))
	}
	return flags
}

func writeProject(t *testing.T, cfgYAML string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, intconfig.ProjectFileName), []byte("name: shop\n"), 0600))
	if cfgYAML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(cfgYAML), 0600))
	}
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := writeProject(t, "")

	cfg, err := LoadConfig("", newFlags(t, map[string]string{"project-dir": dir}))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectDir)
	assert.Equal(t, intconfig.ProjectFileName, cfg.ProjectFile)
	assert.Equal(t, engine.DefaultSchemaPatterns, cfg.SchemaPatterns)
	assert.Equal(t, engine.DefaultSQLPatterns, cfg.SQLPatterns)
	assert.Equal(t, DefaultTTLMinutes, cfg.Cache.TTLMinutes)
	assert.Equal(t, DefaultMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Empty(t, cfg.StatePath, "state defaults to in-memory")
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		legacy string
		env    string
		flag   string
		want   string
	}{
		{name: "file only", want: "from_file"},
		{name: "legacy env beats file", legacy: "from_legacy", want: "from_legacy"},
		{name: "prefixed env beats legacy", legacy: "from_legacy", env: "from_env", want: "from_env"},
		{name: "flag beats everything", legacy: "from_legacy", env: "from_env", flag: "from_flag", want: "from_flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			dir := writeProject(t, "schema_override: from_file\n")
			if tt.legacy != "" {
				t.Setenv("DBT_SCHEMA_OVERRIDE", tt.legacy)
			}
			if tt.env != "" {
				t.Setenv("DBT_MCP_SCHEMA_OVERRIDE", tt.env)
			}
			set := map[string]string{}
			if tt.flag != "" {
				set["schema-override"] = tt.flag
			}

			cfg, err := LoadConfig(filepath.Join(dir, DefaultConfigFile), newFlags(t, set))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.SchemaOverride)
			assert.Equal(t, dir, cfg.ProjectDir, "config file directory anchors the project")
		})
	}
}

func TestLoadConfig_LegacyEnv(t *testing.T) {
	ResetConfig()
	dir := writeProject(t, "")
	t.Setenv("DBT_PROJECT_PATH", dir)
	t.Setenv("CACHE_TTL_MINUTES", "5")
	t.Setenv("CACHE_SIZE", "10")
	t.Setenv("DBT_SCHEMA_PATTERNS", "models/**/*.yml, schemas/*.yml")
	t.Setenv("DBT_TARGET", "prod")
	t.Setenv("DBT_MCP_CACHE__MAX_ENTRIES", "20")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectDir)
	assert.Equal(t, 5, cfg.Cache.TTLMinutes)
	assert.Equal(t, 20, cfg.Cache.MaxEntries, "DBT_MCP_ variables override legacy names")
	assert.Equal(t, []string{"models/**/*.yml", "schemas/*.yml"}, cfg.SchemaPatterns)
	assert.Equal(t, "prod", cfg.Target)
}

func TestLoadConfig_Targets(t *testing.T) {
	ResetConfig()
	dir := writeProject(t, `
target: prod
schema_strategy: dbt
targets:
  dev:
    type: duckdb
    schema: main
  prod:
    type: snowflake
    schema: ${TEST_PROD_SCHEMA}
    database: ANALYTICS
`)
	t.Setenv("TEST_PROD_SCHEMA", "reporting")

	cfg, err := LoadConfig("", newFlags(t, map[string]string{"project-dir": dir}))
	require.NoError(t, err)

	opts := cfg.ResolverOptions()
	assert.Equal(t, "prod", opts.Target)
	assert.Equal(t, "reporting", opts.DefaultSchema)
	assert.Equal(t, "ANALYTICS", opts.DefaultDatabase)
	assert.Equal(t, intconfig.SchemaDBT, opts.SchemaStrategy)
	assert.Equal(t, "snowflake", cfg.EffectiveWarehouseType())
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), GetConfigFileUsed())

	// An explicit warehouse type wins over the target's
	ResetConfig()
	t.Setenv("DBT_MCP_WAREHOUSE_TYPE", "bigquery")
	cfg, err = LoadConfig("", newFlags(t, map[string]string{"project-dir": dir, "target": "dev"}))
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.ResolverOptions().DefaultSchema)
	assert.Equal(t, "bigquery", cfg.EffectiveWarehouseType())
}

func TestLoadConfig_RelativePaths(t *testing.T) {
	ResetConfig()
	dir := writeProject(t, `
project_dir: dbt
state_path: .dbt-core-mcp/state.db
repository: dbt@main
`)

	cfg, err := LoadConfig(filepath.Join(dir, DefaultConfigFile), nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "dbt"), cfg.ProjectDir)
	assert.Equal(t, filepath.Join(dir, "dbt", ".dbt-core-mcp", "state.db"), cfg.StatePath)
	assert.Equal(t, fetch.RepositorySpec{Root: filepath.Join(dir, "dbt"), Ref: "main"}, cfg.RepositorySpec())
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	ResetConfig()
	dir := writeProject(t, "cache:\n  ttl_minutes: [1\n")

	_, err := LoadConfig("", newFlags(t, map[string]string{"project-dir": dir}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			ProjectFile:    intconfig.ProjectFileName,
			SchemaPatterns: engine.DefaultSchemaPatterns,
			SQLPatterns:    engine.DefaultSQLPatterns,
			Cache:          CacheConfig{TTLMinutes: 60, MaxEntries: 100},
			Concurrency:    4,
			LogLevel:       "info",
			LogFormat:      "text",
			OutputFormat:   "auto",
			Transport:      TransportStdio,
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTLMinutes = 0 }, errSubstr: "cache.ttl_minutes"},
		{name: "negative size", mutate: func(c *Config) { c.Cache.MaxEntries = -1 }, errSubstr: "cache.max_entries"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, errSubstr: "concurrency"},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "grpc" }, errSubstr: "unknown transport"},
		{name: "http without addr", mutate: func(c *Config) { c.Transport = TransportHTTP }, errSubstr: "http_addr"},
		{name: "unknown strategy", mutate: func(c *Config) { c.SchemaStrategy = "prefix" }, errSubstr: "schema_strategy"},
		{name: "unknown warehouse", mutate: func(c *Config) { c.WarehouseType = "oracle" }, errSubstr: "warehouse_type"},
		{name: "unknown target type", mutate: func(c *Config) {
			c.Targets = map[string]TargetConfig{"prod": {Type: "mysql"}}
		}, errSubstr: `target "prod"`},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "trace" }, errSubstr: "log_level"},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errSubstr: "log_format"},
		{name: "unknown output", mutate: func(c *Config) { c.OutputFormat = "yaml" }, errSubstr: "unknown output"},
		{name: "bad pattern", mutate: func(c *Config) { c.SQLPatterns = []string{"models/["} }, errSubstr: "pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_ValidateDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{ProjectDir: dir}
	assert.NoError(t, cfg.ValidateDirectories())

	cfg.ProjectDir = filepath.Join(dir, "missing")
	err := cfg.ValidateDirectories()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}
