// Package config provides configuration management for the dbt-core-mcp CLI.
//
// Configuration is layered with koanf: built-in defaults, then the
// .dbt-core-mcp.yaml file, then the legacy environment variable names,
// then DBT_MCP_* variables, then explicitly set command-line flags.
package config

import (
	"strings"

	intconfig "github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
)

// CacheConfig bounds the snapshot cache.
type CacheConfig struct {
	TTLMinutes int `koanf:"ttl_minutes"`
	MaxEntries int `koanf:"max_entries"`
}

// TargetConfig describes one named target of the dbt profile.
type TargetConfig struct {
	Type     string `koanf:"type"`
	Schema   string `koanf:"schema"`
	Database string `koanf:"database"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectDir  string `koanf:"project_dir"`
	ProjectFile string `koanf:"project_file"`
	// Repository is "root[@ref]"; empty uses ProjectDir
	Repository     string   `koanf:"repository"`
	SchemaPatterns []string `koanf:"schema_patterns"`
	SQLPatterns    []string `koanf:"sql_patterns"`

	Cache CacheConfig `koanf:"cache"`

	SchemaOverride string                  `koanf:"schema_override"`
	Target         string                  `koanf:"target"`
	Targets        map[string]TargetConfig `koanf:"targets"`
	SchemaStrategy string                  `koanf:"schema_strategy"`
	WarehouseType  string                  `koanf:"warehouse_type"`

	StatePath   string `koanf:"state_path"`
	Concurrency int    `koanf:"concurrency"`

	LogLevel     string `koanf:"log_level"`
	LogFormat    string `koanf:"log_format"`
	OutputFormat string `koanf:"output"`

	Transport string `koanf:"transport"`
	HTTPAddr  string `koanf:"http_addr"`
	Watch     bool   `koanf:"watch"`

	// ProjectRoot is where the config file was searched for
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultConfigFile = ".dbt-core-mcp.yaml"
	DefaultTTLMinutes = 60
	DefaultMaxEntries = 100
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultTransport  = "stdio"
	DefaultHTTPAddr   = ":8080"
	DefaultStrategy   = string(intconfig.SchemaCustom)
	DefaultWorkers    = 8
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// SelectedTarget returns the configuration of the selected target, if any.
func (c *Config) SelectedTarget() (TargetConfig, bool) {
	if c.Target == "" || len(c.Targets) == 0 {
		return TargetConfig{}, false
	}
	if t, ok := c.Targets[c.Target]; ok {
		return t, true
	}
	for name, t := range c.Targets {
		if strings.EqualFold(name, c.Target) {
			return t, true
		}
	}
	return TargetConfig{}, false
}

// ResolverOptions maps the configuration onto config resolution inputs.
// Validate must have accepted the schema strategy.
func (c *Config) ResolverOptions() intconfig.ResolverOptions {
	strategy, _ := intconfig.ParseSchemaStrategy(c.SchemaStrategy)
	opts := intconfig.ResolverOptions{
		SchemaOverride: c.SchemaOverride,
		Target:         c.Target,
		SchemaStrategy: strategy,
	}
	if t, ok := c.SelectedTarget(); ok {
		opts.DefaultSchema = t.Schema
		opts.DefaultDatabase = t.Database
	}
	return opts
}

// EffectiveWarehouseType returns warehouse_type, else the selected target's type.
func (c *Config) EffectiveWarehouseType() string {
	if c.WarehouseType != "" {
		return c.WarehouseType
	}
	if t, ok := c.SelectedTarget(); ok {
		return t.Type
	}
	return ""
}

// RepositorySpec returns where project documents are fetched from.
func (c *Config) RepositorySpec() fetch.RepositorySpec {
	if c.Repository == "" {
		return fetch.RepositorySpec{Root: c.ProjectDir}
	}
	root, ref, _ := strings.Cut(c.Repository, "@")
	return fetch.RepositorySpec{Root: root, Ref: ref}
}
