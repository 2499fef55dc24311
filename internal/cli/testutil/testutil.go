// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// ProjectFiles is the small dbt project written by SetupTestProject.
var ProjectFiles = map[string]string{
	"dbt_project.yml": `name: shop
version: "1.0"
profile: shop_bigquery
models:
  shop:
    +materialized: view
    marts:
      +materialized: table
      +schema: marts
`,
	"models/staging/schema.yml": `version: 2
models:
  - name: stg_customers
    description: Customers cleaned from the raw export
    columns:
      - name: customer_id
        data_type: integer
        tests:
          - unique
          - not_null
      - name: customer_name
  - name: stg_orders
    description: One row per order
    columns:
      - name: order_id
        tests: [unique]
      - name: customer_id
        tests:
          - relationships:
              to: ref('stg_customers')
              field: customer_id
sources:
  - name: raw
    schema: raw_data
    tables:
      - name: customers
      - name: orders
`,
	"models/marts/schema.yml": `version: 2
models:
  - name: customer_orders
    description: Orders joined to customers
    tags: [finance]
`,
	"models/staging/stg_customers.sql": "select id as customer_id, name as customer_name from {{ source('raw', 'customers') }}",
	"models/staging/stg_orders.sql":    "select id as order_id, customer_id from {{ source('raw', 'orders') }}",
	"models/marts/customer_orders.sql": "select * from {{ ref('stg_orders') }} join {{ ref('stg_customers') }} using (customer_id)",
}

// SetupTestProject creates a temporary dbt project with three models and
// one source.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range ProjectFiles {
		path := filepath.Join(tmpDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	return tmpDir
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
