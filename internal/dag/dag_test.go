package dag

import (
	"reflect"
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("source.raw", nil)
	g.AddNode("model.stg_orders", nil)
	g.AddNode("model.orders", nil)

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	if err := g.AddEdge("source.raw", "model.stg_orders"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	if err := g.AddEdge("model.stg_orders", "model.orders"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// duplicate edges are ignored
	if err := g.AddEdge("model.stg_orders", "model.orders"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_SelfLoopIsACycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "a"); err != nil {
		t.Fatalf("self-loop rejected: %v", err)
	}
	if has, _ := g.HasCycle(); !has {
		t.Error("expected self-loop to be reported as a cycle")
	}
}

func TestGraph_ParentsAndChildrenAreCopies(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	_ = g.AddEdge("a", "b")

	children := g.GetChildren("a")
	children[0] = "mutated"

	if got := g.GetChildren("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("graph mutated through returned slice: %v", got)
	}
	if got := g.GetParents("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected parents [a], got %v", got)
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, nil)
	}
	// diamond, no cycle
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("b", "d")
	_ = g.AddEdge("c", "d")

	if has, path := g.HasCycle(); has {
		t.Fatalf("diamond reported as cycle: %v", path)
	}

	_ = g.AddEdge("d", "a")
	has, path := g.HasCycle()
	if !has {
		t.Fatal("expected cycle")
	}
	if len(path) < 2 || path[0] != path[len(path)-1] {
		t.Errorf("cycle path should start and end on the same node: %v", path)
	}
}

func TestGraph_RootsAndLeaves(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"source.raw", "model.stg", "model.mart", "exposure.dash"} {
		g.AddNode(id, nil)
	}
	_ = g.AddEdge("source.raw", "model.stg")
	_ = g.AddEdge("model.stg", "model.mart")
	_ = g.AddEdge("model.mart", "exposure.dash")

	if got := g.GetRoots(); !reflect.DeepEqual(got, []string{"source.raw"}) {
		t.Errorf("roots = %v", got)
	}
	if got := g.GetLeaves(); !reflect.DeepEqual(got, []string{"exposure.dash"}) {
		t.Errorf("leaves = %v", got)
	}
}

func TestGraph_Levels(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"source.raw", "model.stg", "model.int", "model.mart"} {
		g.AddNode(id, nil)
	}
	_ = g.AddEdge("source.raw", "model.stg")
	_ = g.AddEdge("model.stg", "model.int")
	_ = g.AddEdge("model.int", "model.mart")
	_ = g.AddEdge("model.stg", "model.mart")

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	want := [][]string{{"source.raw"}, {"model.stg"}, {"model.int"}, {"model.mart"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}

	if levels, err := NewGraph().Levels(); err != nil || len(levels) != 0 {
		t.Errorf("empty graph: levels = %v, err = %v", levels, err)
	}

	_ = g.AddEdge("model.mart", "model.stg")
	if _, err := g.Levels(); err == nil {
		t.Error("expected an error for a cyclic graph")
	}
}

func TestGraph_ReadOnly(t *testing.T) {
	g := NewGraph()
	g.AddNode("model.stg", "stg")
	g.AddNode("model.mart", "mart")
	_ = g.AddEdge("model.stg", "model.mart")

	view := g.ReadOnly()
	if _, ok := view.(*Graph); ok {
		t.Fatal("read-only view converts back to *Graph")
	}
	if _, ok := view.(interface{ AddEdge(string, string) error }); ok {
		t.Fatal("read-only view exposes AddEdge")
	}

	if got := view.GetChildren("model.stg"); !reflect.DeepEqual(got, []string{"model.mart"}) {
		t.Errorf("children = %v", got)
	}
	if data, ok := view.NodeData("model.mart"); !ok || data != "mart" {
		t.Errorf("NodeData = %v, %v", data, ok)
	}
	if _, ok := view.NodeData("model.missing"); ok {
		t.Error("NodeData reported a missing node")
	}

	// the view follows the graph it wraps
	g.AddNode("model.extra", nil)
	if view.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", view.NodeCount())
	}
}
