package core

import "strings"

// =============================================================================
// Severity
// =============================================================================

// Severity indicates how a failing data test is reported by dbt.
type Severity int

// Severity levels for data tests.
const (
	// SeverityError fails the run when the test fails.
	SeverityError Severity = iota
	// SeverityWarn reports the failure without failing the run.
	SeverityWarn
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarn:
		return "warn"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity as its dbt keyword.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityError and false if invalid.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return SeverityError, true
	case "warn", "warning":
		return SeverityWarn, true
	default:
		return SeverityError, false
	}
}
