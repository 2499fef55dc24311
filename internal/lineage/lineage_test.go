package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

func build(t *testing.T, in registry.Input) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(in, registry.Options{})
	require.NoError(t, err)
	return reg
}

func model(name string, refs ...string) *core.Model {
	return &core.Model{Name: name, Refs: refs, Enabled: true}
}

func names(nodes []Node) map[string]int {
	out := make(map[string]int, len(nodes))
	for _, n := range nodes {
		out[n.Name] = n.Depth
	}
	return out
}

// A depends on source S and model B; B depends on C.
func chain(t *testing.T) *registry.Registry {
	a := model("A", "B")
	a.SourceRefs = []core.SourceRef{{Source: "S", Table: "t"}}
	return build(t, registry.Input{
		Models:  []*core.Model{a, model("B", "C"), model("C")},
		Sources: []*core.Source{{Name: "S"}},
	})
}

func TestResolve_UpstreamDepth(t *testing.T) {
	reg := chain(t)

	tests := []struct {
		name  string
		depth int
		want  map[string]int
	}{
		{name: "depth 1", depth: 1, want: map[string]int{"S": 1, "B": 1}},
		{name: "depth 2", depth: 2, want: map[string]int{"S": 1, "B": 1, "C": 2}},
		{name: "clamped low", depth: 0, want: map[string]int{"S": 1, "B": 1}},
		{name: "clamped high", depth: 99, want: map[string]int{"S": 1, "B": 1, "C": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(reg, "a", Upstream, tt.depth)
			require.NoError(t, err)
			assert.Equal(t, "A", res.Root)
			assert.Equal(t, tt.want, names(res.Upstream))
			assert.Empty(t, res.Downstream)
			assert.Empty(t, res.CyclesDetected)
			assert.Equal(t, ClampDepth(tt.depth), res.Depth)
		})
	}
}

func TestResolve_Downstream(t *testing.T) {
	reg := chain(t)

	res, err := Resolve(reg, "C", Downstream, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1, "A": 2}, names(res.Downstream))
	assert.Equal(t, []Edge{{From: "model.b", To: "model.a"}, {From: "model.c", To: "model.b"}}, res.Edges)

	src := res.Downstream[1]
	assert.Equal(t, core.KindModel, src.Kind)
	assert.Equal(t, "model.a", src.ID)
}

func TestResolve_TwoNodeCycle(t *testing.T) {
	reg := build(t, registry.Input{Models: []*core.Model{model("A", "B"), model("B", "A")}})

	res, err := Resolve(reg, "A", Both, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.CyclesDetected)
	assert.Equal(t, map[string]int{"B": 1}, names(res.Upstream))
	assert.Equal(t, map[string]int{"B": 1}, names(res.Downstream))
}

func TestResolve_SelfLoop(t *testing.T) {
	reg := build(t, registry.Input{Models: []*core.Model{model("A", "A")}})

	res, err := Resolve(reg, "A", Upstream, 3)
	require.NoError(t, err)
	assert.Empty(t, res.Upstream)
	assert.Equal(t, []string{"A"}, res.CyclesDetected)
}

func TestResolve_DiamondIsNotCycle(t *testing.T) {
	// D depends on B and C, both of which depend on A.
	reg := build(t, registry.Input{Models: []*core.Model{
		model("A"), model("B", "A"), model("C", "A"), model("D", "B", "C"),
	}})

	res, err := Resolve(reg, "D", Upstream, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1, "C": 1, "A": 2}, names(res.Upstream))
	assert.Len(t, res.Upstream, 3, "each node appears once")
	assert.Empty(t, res.CyclesDetected)
}

func TestResolve_LongCycleOutsideDepth(t *testing.T) {
	// A -> B -> C -> A, walked upstream from A with depth 1 only examines C->A.
	reg := build(t, registry.Input{Models: []*core.Model{model("A", "C"), model("B", "A"), model("C", "B")}})

	res, err := Resolve(reg, "A", Upstream, 1)
	require.NoError(t, err)
	assert.Empty(t, res.CyclesDetected)

	res, err = Resolve(reg, "A", Upstream, 3)
	require.NoError(t, err)
	assert.Len(t, res.CyclesDetected, 1)
}

func TestResolve_ExposuresAndDangling(t *testing.T) {
	reg := build(t, registry.Input{
		Models:    []*core.Model{model("orders", "missing")},
		Exposures: []*core.Exposure{{Name: "dash", Refs: []string{"orders"}}},
	})

	res, err := Resolve(reg, "orders", Both, 2)
	require.NoError(t, err)
	require.Len(t, res.Downstream, 1)
	assert.Equal(t, core.KindExposure, res.Downstream[0].Kind)
	require.Len(t, res.Dangling, 1)
	assert.Equal(t, "missing", res.Dangling[0].Reference)
}

func TestResolve_Errors(t *testing.T) {
	reg := chain(t)

	_, err := Resolve(reg, "nope", Both, 2)
	var nf *core.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = Resolve(reg, "A", Direction("sideways"), 2)
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"", Both, false},
		{"UP", "", true},
		{"Upstream", Upstream, false},
		{" downstream ", Downstream, false},
		{"both", Both, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				var invalid *core.InvalidArgumentError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, "lineage direction", invalid.Argument)
				assert.Equal(t, tt.in, invalid.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
