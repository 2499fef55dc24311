// Package core defines the shared language of the dbt-core-mcp system.
//
// This package contains:
//   - Domain entities (Model, Column, Test, Source, Exposure, Metric)
//   - Closed enumerations (Materialization, TestKind, Severity, EntityKind)
//   - Entity-level configuration overrides (ConfigOverrides)
//   - Typed errors shared by the parser, registry and query layers
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
