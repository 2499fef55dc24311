package core

import "strings"

// EntityKind identifies which structural section an entity came from.
type EntityKind string

// Entity kinds.
const (
	KindModel    EntityKind = "model"
	KindSource   EntityKind = "source"
	KindExposure EntityKind = "exposure"
	KindMetric   EntityKind = "metric"
)

// KindColumn only labels column lookups; columns are not indexed entities.
const KindColumn EntityKind = "column"

// ParseEntityKind converts a string to an EntityKind.
func ParseEntityKind(s string) (EntityKind, bool) {
	switch k := EntityKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindModel, KindSource, KindExposure, KindMetric:
		return k, true
	default:
		return "", false
	}
}

// EntityID returns the snapshot-wide identifier of an entity, e.g. "model.orders".
// Names are folded to lower case; entity names are case-insensitive.
func EntityID(kind EntityKind, name string) string {
	return string(kind) + "." + strings.ToLower(name)
}

// SplitEntityID is the inverse of EntityID. The returned name is lower-cased.
func SplitEntityID(id string) (EntityKind, string) {
	kind, name, ok := strings.Cut(id, ".")
	if !ok {
		return "", id
	}
	return EntityKind(kind), name
}
