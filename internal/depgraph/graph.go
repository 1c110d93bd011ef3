// Package depgraph computes a dependency-ordered static-seed table order
// (spec §4.6): a directed graph of child→parent foreign-key edges, Kahn's
// algorithm over it with a deterministic tie-break, and a validator that
// checks a given order against the model.
package depgraph

import (
	"sort"
	"strings"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
)

// NameResolver maps a physical table name to its effective (possibly
// naming-override-remapped) name. Identity is a valid resolver.
type NameResolver func(ids.TableName) ids.TableName

// Identity is the no-op NameResolver.
func Identity(t ids.TableName) ids.TableName { return t }

// Edge is one child→parent foreign-key dependency edge.
type Edge struct {
	Child          ids.TableName
	Parent         ids.TableName
	ForeignKeyName string
}

// Graph is the dependency graph over effective table names.
type Graph struct {
	Nodes []ids.TableName
	Edges []Edge
}

// BuildGraph constructs the dependency graph for m's static entities, per
// spec §4.6: one edge per relationship with hasDatabaseConstraint=true and
// at least one ActualConstraint with hydrated columns. Self-edges are
// ignored.
func BuildGraph(m model.OsmModel, resolve NameResolver) Graph {
	if resolve == nil {
		resolve = Identity
	}

	seen := map[string]ids.TableName{}
	var g Graph

	addNode := func(t ids.TableName) {
		key := t.Fold()
		if _, ok := seen[key]; !ok {
			seen[key] = t
			g.Nodes = append(g.Nodes, t)
		}
	}

	for _, e := range m.AllEntities() {
		if !e.IsStatic {
			continue
		}
		child := resolve(e.TableName)
		addNode(child)
		for _, rel := range e.Relationships {
			if !rel.IsForeignKey() {
				continue
			}
			for _, c := range rel.ActualConstraints {
				if !c.IsHydrated() {
					continue
				}
				parentTable := c.ReferencedTable
				if parentTable.Empty() {
					parentTable = rel.ToTable
				}
				parent := resolve(parentTable)
				addNode(parent)
				if parent.Fold() == child.Fold() {
					continue // self-edge ignored
				}
				g.Edges = append(g.Edges, Edge{Child: child, Parent: parent, ForeignKeyName: ids.DisplayConstraintName(c.Name)})
			}
		}
	}

	return g
}

// Cycle is one strongly-connected component with more than one node (or a
// self-loop, which is ignored upstream), per spec §4.6.
type Cycle struct {
	TablesInCycle []ids.TableName
	CyclePath     []ids.TableName
	ForeignKeys   []string
}

// OrderResult is the outcome of TopoOrder.
type OrderResult struct {
	Order         []ids.TableName
	CycleDetected bool
	Cycles        []Cycle
}

// TopoOrder computes a deterministic parent-before-child order via Kahn's
// algorithm: within the same in-degree tier, nodes are picked by
// case-insensitive effective table name. If the graph contains a cycle, the
// longest acyclic prefix is returned and the remainder is reported via
// Cycles/CycleDetected.
func TopoOrder(g Graph) OrderResult {
	// Ordering edges run parent -> child: a parent must be emitted before
	// its dependent children, which is the reverse of the FK child->parent
	// edges recorded in Graph.
	outEdges := map[string][]string{} // parent fold -> child folds
	inDegree := map[string]int{}
	byFold := map[string]ids.TableName{}

	for _, n := range g.Nodes {
		byFold[n.Fold()] = n
		if _, ok := inDegree[n.Fold()]; !ok {
			inDegree[n.Fold()] = 0
		}
	}
	for _, e := range g.Edges {
		outEdges[e.Parent.Fold()] = append(outEdges[e.Parent.Fold()], e.Child.Fold())
		inDegree[e.Child.Fold()]++
	}

	var order []ids.TableName
	remaining := map[string]bool{}
	for _, n := range g.Nodes {
		remaining[n.Fold()] = true
	}

	for {
		var ready []string
		for fold := range remaining {
			if inDegree[fold] == 0 {
				ready = append(ready, fold)
			}
		}
		if len(ready) == 0 {
			break
		}
		sort.Slice(ready, func(i, j int) bool { return strings.ToLower(ready[i]) < strings.ToLower(ready[j]) })
		for _, fold := range ready {
			order = append(order, byFold[fold])
			delete(remaining, fold)
			for _, child := range outEdges[fold] {
				inDegree[child]--
			}
		}
	}

	result := OrderResult{Order: order}
	if len(remaining) > 0 {
		result.CycleDetected = true
		result.Cycles = computeCycles(g, remaining, byFold)
	}
	return result
}

// computeCycles finds strongly-connected components with more than one node
// among the unresolved (cyclic) remainder, using Tarjan's algorithm.
func computeCycles(g Graph, remaining map[string]bool, byFold map[string]ids.TableName) []Cycle {
	adj := map[string][]Edge{}
	for _, e := range g.Edges {
		cf, pf := e.Child.Fold(), e.Parent.Fold()
		if remaining[cf] && remaining[pf] {
			adj[cf] = append(adj[cf], e)
		}
	}

	var (
		index   int
		stack   []string
		onStack = map[string]bool{}
		indices = map[string]int{}
		lowlink = map[string]int{}
		sccs    [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		neighbors := append([]Edge(nil), adj[v]...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Parent.Fold() < neighbors[j].Parent.Fold() })
		for _, e := range neighbors {
			w := e.Parent.Fold()
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, component)
		}
	}

	var keys []string
	for k := range remaining {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, visited := indices[k]; !visited {
			strongConnect(k)
		}
	}

	var cycles []Cycle
	for _, comp := range sccs {
		if len(comp) < 2 {
			continue
		}
		sort.Strings(comp)
		var tables []ids.TableName
		var fks []string
		for _, fold := range comp {
			tables = append(tables, byFold[fold])
			for _, e := range adj[fold] {
				if remaining[e.Parent.Fold()] {
					fks = append(fks, e.ForeignKeyName)
				}
			}
		}
		sort.Strings(fks)
		cycles = append(cycles, Cycle{TablesInCycle: tables, CyclePath: tables, ForeignKeys: fks})
	}
	return cycles
}
