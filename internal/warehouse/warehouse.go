// Package warehouse describes the warehouses a project can target and how
// each one names the datasets that models are built into.
package warehouse

import (
	"sort"
	"strings"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Type identifies a warehouse adapter.
type Type string

// Supported warehouses.
const (
	BigQuery   Type = "bigquery"
	Snowflake  Type = "snowflake"
	Postgres   Type = "postgres"
	Redshift   Type = "redshift"
	Databricks Type = "databricks"
	Synapse    Type = "synapse"
	DuckDB     Type = "duckdb"
)

// Normalization is how a warehouse folds unquoted identifiers.
type Normalization int

// Normalization strategies.
const (
	NormPreserve Normalization = iota
	NormLowercase
	NormUppercase
)

// Config is the static description of one warehouse.
type Config struct {
	Type Type
	// Term is what the warehouse calls a schema ("dataset" on BigQuery)
	Term string
	// DatabaseTerm is what the warehouse calls a database
	DatabaseTerm  string
	DefaultSchema string
	Normalization Normalization
}

var configs = map[Type]*Config{
	BigQuery:   {Type: BigQuery, Term: "dataset", DatabaseTerm: "project", Normalization: NormPreserve},
	Snowflake:  {Type: Snowflake, Term: "schema", DatabaseTerm: "database", DefaultSchema: "PUBLIC", Normalization: NormUppercase},
	Postgres:   {Type: Postgres, Term: "schema", DatabaseTerm: "database", DefaultSchema: "public", Normalization: NormLowercase},
	Redshift:   {Type: Redshift, Term: "schema", DatabaseTerm: "database", DefaultSchema: "public", Normalization: NormLowercase},
	Databricks: {Type: Databricks, Term: "schema", DatabaseTerm: "catalog", DefaultSchema: "default", Normalization: NormLowercase},
	Synapse:    {Type: Synapse, Term: "schema", DatabaseTerm: "database", DefaultSchema: "dbo", Normalization: NormPreserve},
	DuckDB:     {Type: DuckDB, Term: "schema", DatabaseTerm: "database", DefaultSchema: "main", Normalization: NormLowercase},
}

// inferenceOrder is the order profile names are matched in.
var inferenceOrder = []struct {
	typ     Type
	needles []string
}{
	{BigQuery, []string{"bigquery", "bq"}},
	{Snowflake, []string{"snowflake"}},
	{Postgres, []string{"postgres", "pg"}},
	{Redshift, []string{"redshift"}},
	{Databricks, []string{"databricks"}},
	{Synapse, []string{"synapse"}},
	{DuckDB, []string{"duckdb"}},
}

// Get returns the configuration of a warehouse type.
func Get(t Type) (*Config, bool) {
	c, ok := configs[t]
	return c, ok
}

// List returns all supported warehouse types, sorted.
func List() []string {
	names := make([]string, 0, len(configs))
	for t := range configs {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Parse converts a string to a supported Type.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := configs[t]; !ok {
		return "", &core.InvalidArgumentError{Argument: "warehouse type", Value: s, Allowed: List()}
	}
	return t, nil
}

// Infer guesses the warehouse from the project's profile name, then from
// vars whose key mentions "warehouse" or "adapter". It returns false when
// nothing matches.
func Infer(profile string, vars map[string]string) (Type, bool) {
	if p := strings.ToLower(profile); p != "" {
		for _, cand := range inferenceOrder {
			for _, needle := range cand.needles {
				if strings.Contains(p, needle) {
					return cand.typ, true
				}
			}
		}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "warehouse") && !strings.Contains(lk, "adapter") {
			continue
		}
		v := strings.ToLower(vars[k])
		for _, cand := range inferenceOrder {
			if strings.Contains(v, string(cand.typ)) {
				return cand.typ, true
			}
		}
	}
	return "", false
}

// Normalize folds an identifier the way the warehouse does.
func (c *Config) Normalize(name string) string {
	switch c.Normalization {
	case NormLowercase:
		return strings.ToLower(name)
	case NormUppercase:
		return strings.ToUpper(name)
	default:
		return name
	}
}

// DatasetName returns the fully qualified dataset a model is built into,
// e.g. "project.dataset" on BigQuery or "DB.SCHEMA" on Snowflake.
// defaultDatabase applies when the model sets no database.
func (c *Config) DatasetName(m *core.Model, defaultDatabase string) string {
	schema := m.Schema
	if schema == "" {
		schema = c.DefaultSchema
	}
	db := m.Database
	if db == "" {
		db = defaultDatabase
	}
	if db == "" {
		return c.Normalize(schema)
	}
	return c.Normalize(db) + "." + c.Normalize(schema)
}
