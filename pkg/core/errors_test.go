package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

func TestInvalidArgumentError(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		want    string
	}{
		{"no choices", nil, `invalid depth "x"`},
		{"one choice", []string{"a"}, `invalid depth "x" (want a)`},
		{"several choices", []string{"a", "b", "c"}, `invalid depth "x" (want a, b or c)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &core.InvalidArgumentError{Argument: "depth", Value: "x", Allowed: tt.allowed}
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestNoSnapshotError(t *testing.T) {
	assert.Equal(t, "no snapshot available", (&core.NoSnapshotError{}).Error())

	cause := errors.New("fetch failed")
	err := error(&core.NoSnapshotError{Err: cause})
	assert.Equal(t, "no snapshot available: fetch failed", err.Error())
	assert.ErrorIs(t, err, cause)

	var ns *core.NoSnapshotError
	assert.True(t, errors.As(err, &ns))
}
