// Package graph implements the Dependency Graph : a directed
// acyclic graph of task nodes keyed by task reference with typed edges,
// supporting ancestor-confirmation queries and failure cascades.
package graph

import (
	"fmt"
	"sync"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// Node tracks a task's known parents/children and whether its commitment
// has confirmed. Placeholder nodes exist because an edge referenced a task
// the graph hasn't observed directly yet.
type Node struct {
	Ref         task.Ref
	Parents     []task.Ref
	Children    []task.Ref
	Confirmed   bool
	Placeholder bool
}

// Graph is a mutex-guarded, in-memory dependency DAG.
type Graph struct {
	mu    sync.RWMutex
	nodes map[task.Ref]*Node
	edges []task.Edge
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[task.Ref]*Node)}
}

// AddNode registers ref as a known (non-placeholder) node. If ref already
// exists as a placeholder, it is promoted.
func (g *Graph) AddNode(ref task.Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(ref).Placeholder = false
}

func (g *Graph) ensureNode(ref task.Ref) *Node {
	n, ok := g.nodes[ref]
	if !ok {
		n = &Node{Ref: ref, Placeholder: true}
		g.nodes[ref] = n
	}
	return n
}

// AddNodeWithParent creates an edge from parent to child, creating
// placeholder nodes for either side if they don't already exist. Rejects
// edges that would close a cycle.
func (g *Graph) AddNodeWithParent(parent, child task.Ref, edgeType task.EdgeType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	childNode := g.ensureNode(child)
	parentNode := g.ensureNode(parent)

	if g.reaches(child, parent) {
		return fmt.Errorf("edge %s -> %s would close a cycle", parent, child)
	}

	for _, p := range childNode.Parents {
		if p == parent {
			return nil // edge already present
		}
	}

	childNode.Parents = append(childNode.Parents, parent)
	parentNode.Children = append(parentNode.Children, child)
	g.edges = append(g.edges, task.Edge{Parent: parent, Child: child, Type: edgeType})
	return nil
}

// reaches reports whether there is a directed path from `from` to `to`,
// used to reject edges that would introduce a cycle. Caller holds g.mu.
func (g *Graph) reaches(from, to task.Ref) bool {
	if from == to {
		return true
	}
	visited := map[task.Ref]bool{from: true}
	stack := []task.Ref{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for _, child := range node.Children {
			if child == to {
				return true
			}
			if !visited[child] {
				visited[child] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}

// MarkConfirmed marks ref's node confirmed.
func (g *Graph) MarkConfirmed(ref task.Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(ref).Confirmed = true
}

// UnconfirmedAncestors returns every transitive parent of ref whose node is
// not yet confirmed.
func (g *Graph) UnconfirmedAncestors(ref task.Ref) []task.Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []task.Ref
	visited := map[task.Ref]bool{}
	var walk func(task.Ref)
	walk = func(r task.Ref) {
		node, ok := g.nodes[r]
		if !ok {
			return
		}
		for _, p := range node.Parents {
			if visited[p] {
				continue
			}
			visited[p] = true
			if pn, ok := g.nodes[p]; !ok || !pn.Confirmed {
				out = append(out, p)
			}
			walk(p)
		}
	}
	walk(ref)
	return out
}

// AreAncestorsConfirmed reports whether every transitive parent of ref has
// a confirmed commitment.
func (g *Graph) AreAncestorsConfirmed(ref task.Ref) bool {
	return len(g.UnconfirmedAncestors(ref)) == 0
}

// SpeculatableAncestorChain reports whether every edge on the path from ref
// up to its unconfirmed ancestors uses a speculatable edge type, and
// returns the maximum depth of unconfirmed ancestry encountered, provided
// the whole chain of unconfirmed ancestors uses speculatable edge types.
func (g *Graph) SpeculatableAncestorChain(ref task.Ref) (speculatable bool, depth int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edgeType := make(map[[2]task.Ref]task.EdgeType, len(g.edges))
	for _, e := range g.edges {
		edgeType[[2]task.Ref{e.Parent, e.Child}] = e.Type
	}

	speculatable = true
	visited := map[task.Ref]bool{}
	var walk func(task.Ref, int)
	walk = func(r task.Ref, d int) {
		node, ok := g.nodes[r]
		if !ok {
			return
		}
		for _, p := range node.Parents {
			pn, known := g.nodes[p]
			if known && pn.Confirmed {
				continue
			}
			if et, ok := edgeType[[2]task.Ref{p, r}]; !ok || !et.Speculatable() {
				speculatable = false
			}
			if d+1 > depth {
				depth = d + 1
			}
			if !visited[p] {
				visited[p] = true
				walk(p, d+1)
			}
		}
	}
	walk(ref, 0)
	return speculatable, depth
}

// Descendants returns the transitive closure of ref's children, used to
// compute the affected set on a parent failure cascade.
func (g *Graph) Descendants(ref task.Ref) []task.Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []task.Ref
	visited := map[task.Ref]bool{}
	var walk func(task.Ref)
	walk = func(r task.Ref) {
		node, ok := g.nodes[r]
		if !ok {
			return
		}
		for _, c := range node.Children {
			if visited[c] {
				continue
			}
			visited[c] = true
			out = append(out, c)
			walk(c)
		}
	}
	walk(ref)
	return out
}

// Parents returns the direct parents recorded for ref.
func (g *Graph) Parents(ref task.Ref) []task.Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[ref]
	if !ok {
		return nil
	}
	out := make([]task.Ref, len(node.Parents))
	copy(out, node.Parents)
	return out
}

// Children returns the direct children recorded for ref.
func (g *Graph) Children(ref task.Ref) []task.Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[ref]
	if !ok {
		return nil
	}
	out := make([]task.Ref, len(node.Children))
	copy(out, node.Children)
	return out
}

// Has reports whether ref has a node in the graph, placeholder or not.
func (g *Graph) Has(ref task.Ref) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[ref]
	return ok
}

// NodeCount returns the current number of nodes (placeholders included).
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
