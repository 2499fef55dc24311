package config

import (
	"fmt"
	"os"
	"strings"

	intconfig "github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/warehouse"
)

var outputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Cache.TTLMinutes <= 0 {
		return fmt.Errorf("cache.ttl_minutes must be positive, got %d", c.Cache.TTLMinutes)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}

	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (supported: %s, %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.Transport == TransportHTTP && c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required for the http transport")
	}

	if _, ok := intconfig.ParseSchemaStrategy(c.SchemaStrategy); !ok {
		return fmt.Errorf("unknown schema_strategy %q (supported: %s, %s)",
			c.SchemaStrategy, intconfig.SchemaCustom, intconfig.SchemaDBT)
	}
	if c.WarehouseType != "" {
		if _, err := warehouse.Parse(c.WarehouseType); err != nil {
			return fmt.Errorf("invalid warehouse_type: %w", err)
		}
	}
	for name, t := range c.Targets {
		if t.Type == "" {
			continue
		}
		if _, err := warehouse.Parse(t.Type); err != nil {
			return fmt.Errorf("invalid type for target %q: %w", name, err)
		}
	}

	if _, ok := parseLogLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log_level %q (supported: debug, info, warn, error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (supported: text, json)", c.LogFormat)
	}
	if !validOutput(c.OutputFormat) {
		return fmt.Errorf("unknown output %q (supported: %s)", c.OutputFormat, strings.Join(outputModes, ", "))
	}

	patterns := append([]string{c.ProjectFile}, c.SchemaPatterns...)
	patterns = append(patterns, c.SQLPatterns...)
	if err := fetch.ValidatePatterns(patterns); err != nil {
		return fmt.Errorf("invalid document pattern: %w", err)
	}

	// Directory existence is checked by ValidateDirectories so that help
	// and version work anywhere
	return nil
}

func validOutput(s string) bool {
	if s == "" {
		return true
	}
	for _, m := range outputModes {
		if strings.EqualFold(s, m) {
			return true
		}
	}
	return false
}

// ValidateDirectories checks that the project directory exists.
func (c *Config) ValidateDirectories() error {
	if c.Repository != "" {
		return nil
	}
	info, err := os.Stat(c.ProjectDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("project directory does not exist: %s\nHint: use --project-dir or DBT_PROJECT_PATH to point at a dbt project", c.ProjectDir)
	}
	if err != nil {
		return fmt.Errorf("failed to stat project directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path is not a directory: %s", c.ProjectDir)
	}
	return nil
}
