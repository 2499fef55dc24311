package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
)

// loggerKey is used to store logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes environment variables; "__" separates nested keys.
const EnvPrefix = "DBT_MCP_"

// legacyEnv maps the environment variable names of earlier releases to
// config keys.
var legacyEnv = map[string]string{
	"CACHE_TTL_MINUTES":   "cache.ttl_minutes",
	"CACHE_SIZE":          "cache.max_entries",
	"DBT_SCHEMA_PATTERNS": "schema_patterns",
	"DBT_PROJECT_PATH":    "project_dir",
	"DBT_SCHEMA_OVERRIDE": "schema_override",
	"DBT_TARGET":          "target",
}

// listKeys are comma-separated when read from the environment.
var listKeys = map[string]bool{
	"schema_patterns": true,
	"sql_patterns":    true,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

var configFileNames = []string{DefaultConfigFile, ".dbt-core-mcp.yml"}

// configExistsIn reports whether dir holds a config file or a dbt project.
func configExistsIn(dir string) bool {
	for _, name := range append(configFileNames, intconfig.ProjectFileName) {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRootUpward searches upward from startDir for a config file or
// dbt_project.yml. Returns empty string if not found within
// maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Explicit --project-dir flag
//  2. Search upward from CWD for .dbt-core-mcp.yaml or dbt_project.yml
//  3. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	if flags != nil {
		if f := flags.Lookup("project-dir"); f != nil && f.Changed && f.Value.String() != "" {
			abs, err := filepath.Abs(f.Value.String())
			if err == nil {
				return abs
			}
			return filepath.Clean(f.Value.String())
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"project_file":      intconfig.ProjectFileName,
		"schema_patterns":   engine.DefaultSchemaPatterns,
		"sql_patterns":      engine.DefaultSQLPatterns,
		"cache.ttl_minutes": DefaultTTLMinutes,
		"cache.max_entries": DefaultMaxEntries,
		"schema_strategy":   DefaultStrategy,
		"concurrency":       DefaultWorkers,
		"log_level":         DefaultLogLevel,
		"log_format":        DefaultLogFormat,
		"output":            DefaultOutput,
		"transport":         DefaultTransport,
		"http_addr":         DefaultHTTPAddr,
		"watch":             false,
	}
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > DBT_MCP_* env > legacy env >
// config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	projectRoot := inferProjectRoot(flags)
	flagProjectDir := ""
	if flags != nil && flags.Changed("project-dir") {
		flagProjectDir = projectRoot
	}

	// An explicit config file anchors relative paths unless --project-dir was given
	if cfgFile != "" && flagProjectDir == "" {
		if absPath, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(absPath)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		for _, name := range configFileNames {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	// 3. Legacy environment variable names
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		name, ok := legacyEnv[key]
		if !ok {
			return "", nil
		}
		return name, envValue(name, value)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy env vars: %w", err)
	}

	// 4. DBT_MCP_ environment variables
	// Transform: DBT_MCP_CACHE__TTL_MINUTES -> cache.ttl_minutes
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		name = strings.ReplaceAll(name, "__", ".")
		if name == "" {
			return "", nil
		}
		return name, envValue(name, value)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "config":
				return "", nil
			case "state":
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 6. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot
	expandConfigEnvVars(&cfg)

	// 7. Resolve paths. The flag value is already absolute.
	switch {
	case flagProjectDir != "":
		cfg.ProjectDir = flagProjectDir
	case cfg.ProjectDir == "":
		cfg.ProjectDir = projectRoot
	default:
		cfg.ProjectDir = resolvePathRelativeTo(cfg.ProjectDir, projectRoot)
	}
	if cfg.Repository != "" {
		root, ref, hasRef := strings.Cut(cfg.Repository, "@")
		cfg.Repository = resolvePathRelativeTo(root, projectRoot)
		if hasRef {
			cfg.Repository += "@" + ref
		}
	}
	if cfg.StatePath != ":memory:" {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, cfg.ProjectDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// envValue splits list-valued keys on commas.
func envValue(key, value string) interface{} {
	if listKeys[key] {
		return fetch.SplitPatterns(value)
	}
	return value
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the service logger. Logs always go to w (stderr in
// practice), since stdout carries MCP traffic.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	lvl, _ := parseLogLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandConfigEnvVars expands environment variables in path and naming fields.
func expandConfigEnvVars(c *Config) {
	c.ProjectDir = expandEnvVars(c.ProjectDir)
	c.Repository = expandEnvVars(c.Repository)
	c.StatePath = expandEnvVars(c.StatePath)
	c.SchemaOverride = expandEnvVars(c.SchemaOverride)
	c.Target = expandEnvVars(c.Target)
	for name, t := range c.Targets {
		t.Schema = expandEnvVars(t.Schema)
		t.Database = expandEnvVars(t.Database)
		c.Targets[name] = t
	}
}
