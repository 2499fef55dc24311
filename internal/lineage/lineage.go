package lineage

import (
	"sort"
	"strings"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Depth bounds.
const (
	MinDepth     = 1
	MaxDepth     = 5
	DefaultDepth = 2
)

// Direction selects which side of the root is walked.
type Direction string

// Directions.
const (
	Upstream   Direction = "upstream"
	Downstream Direction = "downstream"
	Both       Direction = "both"
)

// ParseDirection converts a string to a Direction. Empty means Both.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Both, nil
	case Upstream, Downstream, Both:
		return d, nil
	default:
		return "", &core.InvalidArgumentError{
			Argument: "lineage direction",
			Value:    s,
			Allowed:  []string{string(Upstream), string(Downstream), string(Both)},
		}
	}
}

// ClampDepth bounds depth to [MinDepth, MaxDepth].
func ClampDepth(depth int) int {
	return min(max(depth, MinDepth), MaxDepth)
}

// Node is an entity reached from the root.
type Node struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Kind  core.EntityKind `json:"kind"`
	Depth int             `json:"depth"`
}

// Edge points from a dependency to its dependent.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result is the lineage of one root.
type Result struct {
	Root       string       `json:"root"`
	Direction  Direction    `json:"direction"`
	Depth      int          `json:"depth"`
	Upstream   []Node       `json:"upstream"`
	Downstream []Node       `json:"downstream"`
	Edges      []Edge       `json:"edges"`
	// CyclesDetected names the entities closing a cycle among the examined edges
	CyclesDetected []string               `json:"cycles_detected"`
	Dangling       []registry.DanglingRef `json:"dangling,omitempty"`
}

// Resolve computes the lineage of the named model.
func Resolve(reg *registry.Registry, name string, dir Direction, depth int) (*Result, error) {
	if dir == "" {
		dir = Both
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	root, err := reg.Model(name)
	if err != nil {
		return nil, err
	}
	depth = ClampDepth(depth)
	rootID := core.EntityID(core.KindModel, root.Name)

	w := &walker{
		reg:   reg,
		edges: make(map[Edge]struct{}),
		seen:  map[string]struct{}{rootID: {}},
	}
	res := &Result{
		Root:           root.Name,
		Direction:      dir,
		Depth:          depth,
		Upstream:       []Node{},
		Downstream:     []Node{},
		CyclesDetected: []string{},
	}
	if dir == Upstream || dir == Both {
		res.Upstream = w.bfs(rootID, depth, true)
	}
	if dir == Downstream || dir == Both {
		res.Downstream = w.bfs(rootID, depth, false)
	}

	res.Edges = make([]Edge, 0, len(w.edges))
	for e := range w.edges {
		res.Edges = append(res.Edges, e)
	}
	sort.Slice(res.Edges, func(i, j int) bool {
		if res.Edges[i].From != res.Edges[j].From {
			return res.Edges[i].From < res.Edges[j].From
		}
		return res.Edges[i].To < res.Edges[j].To
	})

	for _, id := range findCycles(rootID, res.Edges) {
		res.CyclesDetected = append(res.CyclesDetected, w.name(id))
	}

	seen := make([]string, 0, len(w.seen))
	for id := range w.seen {
		seen = append(seen, id)
	}
	sort.Strings(seen)
	for _, id := range seen {
		res.Dangling = append(res.Dangling, reg.Dangling(id)...)
	}
	return res, nil
}

type walker struct {
	reg   *registry.Registry
	edges map[Edge]struct{}
	seen  map[string]struct{}
}

// bfs walks one direction. Every node at depth < maxDepth is expanded and
// each edge leaving it is recorded, whether or not its far end was new.
func (w *walker) bfs(rootID string, maxDepth int, up bool) []Node {
	g := w.reg.Graph()
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	nodes := []Node{}

	for level := 1; level <= maxDepth && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			var neighbours []string
			if up {
				neighbours = g.GetParents(id)
			} else {
				neighbours = g.GetChildren(id)
			}
			sort.Strings(neighbours)
			for _, n := range neighbours {
				if up {
					w.edges[Edge{From: n, To: id}] = struct{}{}
				} else {
					w.edges[Edge{From: id, To: n}] = struct{}{}
				}
				if _, ok := visited[n]; ok {
					continue
				}
				visited[n] = struct{}{}
				w.seen[n] = struct{}{}
				kind, _ := core.SplitEntityID(n)
				nodes = append(nodes, Node{ID: n, Name: w.name(n), Kind: kind, Depth: level})
				next = append(next, n)
			}
		}
		frontier = next
	}
	return nodes
}

func (w *walker) name(id string) string {
	if data, ok := w.reg.Graph().NodeData(id); ok {
		if s, ok := data.(string); ok {
			return s
		}
	}
	_, name := core.SplitEntityID(id)
	return name
}

// findCycles runs a depth-first search over edges, starting at root and then
// at every remaining node in order. For each back edge u->v it records u.
func findCycles(root string, edges []Edge) []string {
	adj := make(map[string][]string)
	nodes := map[string]struct{}{root: {}}
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		nodes[e.From] = struct{}{}
		nodes[e.To] = struct{}{}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(nodes))
	found := make(map[string]struct{})

	var visit func(u string)
	visit = func(u string) {
		color[u] = grey
		for _, v := range adj[u] {
			switch color[v] {
			case white:
				visit(v)
			case grey:
				found[u] = struct{}{}
			}
		}
		color[u] = black
	}

	order := make([]string, 0, len(nodes))
	for n := range nodes {
		if n != root {
			order = append(order, n)
		}
	}
	sort.Strings(order)
	visit(root)
	for _, n := range order {
		if color[n] == white {
			visit(n)
		}
	}

	out := make([]string, 0, len(found))
	for id := range found {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
