// Package lineage walks the dependency graph of a registry snapshot.
//
// Lineage is resolved from a root model outwards, breadth first, up to a
// bounded depth. Each reachable entity appears once per direction, labelled
// with the depth at which it was first reached.
//
// # Features
//
//   - Upstream: models and sources the root depends on
//   - Downstream: models, exposures and metrics that depend on the root
//   - Cycle reporting: cycles in the examined part of the graph are reported,
//     never fatal
//   - Dangling references of every visited entity are carried along
//
// # Basic Usage
//
//	res, err := lineage.Resolve(reg, "orders", lineage.Both, 2)
//	if err != nil {
//	    return err
//	}
//
//	for _, n := range res.Upstream {
//	    fmt.Printf("%s %s (depth %d)\n", n.Kind, n.Name, n.Depth)
//	}
package lineage
