package core

import (
	"fmt"
	"strings"
)

// ParseError reports a document that could not be read at all.
// It aborts that document's contribution to a build, nothing more.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return locate(e.Path, e.Line, e.Column) + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseWarning is an entity- or document-level defect that was recovered from.
type ParseWarning struct {
	Path string `json:"path"`
	// Entity is empty for document-level warnings
	Entity  string `json:"entity,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (w ParseWarning) String() string {
	if w.Entity != "" {
		return locate(w.Path, w.Line, w.Column) + w.Entity + ": " + w.Message
	}
	return locate(w.Path, w.Line, w.Column) + w.Message
}

// ConfigError reports a cyclic or contradictory project configuration.
type ConfigError struct {
	// Path is the dotted configuration path, empty for the root
	Path    string
	Line    int
	Message string
}

func (e *ConfigError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("config %s (line %d): %s", path, e.Line, e.Message)
	}
	return fmt.Sprintf("config %s: %s", path, e.Message)
}

// DuplicateNameError reports two entities of the same kind sharing a name.
type DuplicateNameError struct {
	Kind   EntityKind
	Name   string
	First  string
	Second string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s %q declared in %s and %s", e.Kind, e.Name, e.First, e.Second)
}

// NotFoundError reports a lookup against a name absent from the current snapshot.
type NotFoundError struct {
	Kind        EntityKind
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// InvalidArgumentError reports a query argument outside its accepted values.
type InvalidArgumentError struct {
	Argument string
	Value    string
	Allowed  []string
}

func (e *InvalidArgumentError) Error() string {
	msg := fmt.Sprintf("invalid %s %q", e.Argument, e.Value)
	switch n := len(e.Allowed); n {
	case 0:
	case 1:
		msg += " (want " + e.Allowed[0] + ")"
	default:
		msg += " (want " + strings.Join(e.Allowed[:n-1], ", ") + " or " + e.Allowed[n-1] + ")"
	}
	return msg
}

// NoSnapshotError reports a query made while no snapshot has been built.
type NoSnapshotError struct {
	Err error
}

func (e *NoSnapshotError) Error() string {
	if e.Err != nil {
		return "no snapshot available: " + e.Err.Error()
	}
	return "no snapshot available"
}

func (e *NoSnapshotError) Unwrap() error { return e.Err }

func locate(path string, line, col int) string {
	switch {
	case path == "":
		return ""
	case line > 0 && col > 0:
		return fmt.Sprintf("%s:%d:%d: ", path, line, col)
	case line > 0:
		return fmt.Sprintf("%s:%d: ", path, line)
	default:
		return path + ": "
	}
}
