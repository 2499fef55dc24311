package core

import "strings"

// Materialization is the storage strategy of a model.
// Values outside the built-in set are custom materializations and are kept verbatim.
type Materialization string

// Built-in materializations.
const (
	MaterializationTable       Materialization = "table"
	MaterializationView        Materialization = "view"
	MaterializationIncremental Materialization = "incremental"
	MaterializationEphemeral   Materialization = "ephemeral"
	MaterializationSnapshot    Materialization = "snapshot"
	MaterializationSeed        Materialization = "seed"
)

// DefaultMaterialization applies when no configuration sets one.
const DefaultMaterialization = MaterializationView

var builtinMaterializations = map[Materialization]bool{
	MaterializationTable:       true,
	MaterializationView:        true,
	MaterializationIncremental: true,
	MaterializationEphemeral:   true,
	MaterializationSnapshot:    true,
	MaterializationSeed:        true,
}

// ParseMaterialization normalizes a configured materialization.
// Built-in names are matched case-insensitively; anything else is custom.
func ParseMaterialization(s string) Materialization {
	s = strings.TrimSpace(s)
	if m := Materialization(strings.ToLower(s)); builtinMaterializations[m] {
		return m
	}
	return Materialization(s)
}

// IsCustom reports whether m is a non-empty materialization outside the built-in set.
func (m Materialization) IsCustom() bool {
	return m != "" && !builtinMaterializations[m]
}

// Persisted reports whether the materialization creates a relation in the warehouse.
func (m Materialization) Persisted() bool {
	return m != MaterializationEphemeral
}
