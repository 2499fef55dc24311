// Package dag provides the directed dependency graph between indexed entities.
// Edges point from a dependency to its dependent. The graph tolerates cycles:
// they are detected and reported, never rejected.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (entity id, e.g. "model.orders")
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph represents a directed graph. It is not safe for concurrent mutation;
// once built it may be read concurrently.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// Reader is the read-only side of a Graph.
type Reader interface {
	HasNode(id string) bool
	NodeData(id string) (any, bool)
	GetParents(id string) []string
	GetChildren(id string) []string
	NodeCount() int
	EdgeCount() int
	HasCycle() (bool, []string)
	GetRoots() []string
	GetLeaves() []string
	Levels() ([][]string, error)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data any) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		g.nodes[id].Data = data
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Self-loops are accepted.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// NodeData returns the data attached to a node.
func (g *Graph) NodeData(id string) (any, bool) {
	node, exists := g.nodes[id]
	if !exists {
		return nil, false
	}
	return node.Data, true
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetParents returns the parents (dependencies) of a node.
func (g *Graph) GetParents(id string) []string {
	return slices.Clone(g.parents[id])
}

// GetChildren returns the children (dependents) of a node.
func (g *Graph) GetChildren(id string) []string {
	return slices.Clone(g.edges[id])
}

// GetAllNodes returns all nodes sorted by ID.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with one cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, node := range g.GetAllNodes() {
		if !visited[node.ID] && dfs(node.ID) {
			return true, cyclePath
		}
	}
	return false, nil
}

// GetRoots returns nodes with no parents (no dependencies).
func (g *Graph) GetRoots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// GetLeaves returns nodes with no children (no dependents).
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// Levels groups nodes by their longest distance from a root. Level 0 holds
// the roots. It fails on a cyclic graph.
func (g *Graph) Levels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int, len(g.nodes))
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			if l := levelOf(parentID) + 1; l > level {
				level = l
			}
		}
		assigned[id] = level
		return level
	}

	maxLevel := -1
	for id := range g.nodes {
		if l := levelOf(id); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for id, level := range assigned {
		levels[level] = append(levels[level], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// ReadOnly returns a Reader backed by g that cannot be converted back into
// the mutable graph.
func (g *Graph) ReadOnly() Reader {
	return readOnly{g: g}
}

type readOnly struct {
	g *Graph
}

func (r readOnly) HasNode(id string) bool { return r.g.HasNode(id) }
func (r readOnly) NodeData(id string) (any, bool) { return r.g.NodeData(id) }
func (r readOnly) GetParents(id string) []string { return r.g.GetParents(id) }
func (r readOnly) GetChildren(id string) []string { return r.g.GetChildren(id) }
func (r readOnly) NodeCount() int { return r.g.NodeCount() }
func (r readOnly) EdgeCount() int { return r.g.EdgeCount() }
func (r readOnly) HasCycle() (bool, []string) { return r.g.HasCycle() }
func (r readOnly) GetRoots() []string { return r.g.GetRoots() }
func (r readOnly) GetLeaves() []string { return r.g.GetLeaves() }
func (r readOnly) Levels() ([][]string, error) { return r.g.Levels() }
