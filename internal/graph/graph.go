// Package graph implements the task dependency graph: a labeled
// directed graph whose vertices are tasks keyed by identifier and
// whose edges u -> v mean "v depends on u". The graph enforces
// acyclicity, identifier uniqueness, and that every edge's endpoints
// exist at the moment the edge is added.
package graph

import (
	"fmt"

	"github.com/rparedes/taskgraph/internal/model"
)

// Error kinds returned by graph mutations. Every mutation leaves the
// graph unchanged when it fails.
var (
	ErrDuplicateID = fmt.Errorf("duplicate node id")
	ErrUnknownNode = fmt.Errorf("unknown node")
)

// CycleError reports a cycle detected during edge insertion or an
// explicit validation pass, along with the offending cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Cycle)
}

// Graph is the task dependency graph. It owns every task vertex
// exclusively; callers obtain tasks only through GetNode.
type Graph struct {
	nodes map[string]*model.Task
	// edges[u] is the set of vertices that depend on u (u -> v).
	edges map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*model.Task),
		edges: make(map[string]map[string]struct{}),
	}
}

// HasNode reports whether id is present as a vertex.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetNode retrieves the task vertex for id, or nil if absent.
func (g *Graph) GetNode(id string) *model.Task {
	return g.nodes[id]
}

// Len returns the number of vertices currently in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Ids returns every vertex identifier currently in the graph.
func (g *Graph) Ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// AddNode inserts a vertex. It fails with ErrDuplicateID if id already exists.
func (g *Graph) AddNode(id string, task *model.Task) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	g.nodes[id] = task
	if g.edges[id] == nil {
		g.edges[id] = make(map[string]struct{})
	}
	return nil
}

// AddEdge inserts fromId -> toId (toId depends on fromId). It fails
// with ErrUnknownNode if either endpoint is missing, and with
// CycleError if the edge would introduce a directed cycle. The graph
// is left unchanged on failure.
func (g *Graph) AddEdge(fromID, toID string) error {
	if !g.HasNode(fromID) {
		return fmt.Errorf("%w: %s", ErrUnknownNode, fromID)
	}
	if !g.HasNode(toID) {
		return fmt.Errorf("%w: %s", ErrUnknownNode, toID)
	}

	if g.edges[fromID] == nil {
		g.edges[fromID] = make(map[string]struct{})
	}
	if _, exists := g.edges[fromID][toID]; exists {
		return nil // edge already present, idempotent
	}

	g.edges[fromID][toID] = struct{}{}

	if cycle := g.findCycle(); cycle != nil {
		delete(g.edges[fromID], toID)
		return &CycleError{Cycle: cycle}
	}

	return nil
}

// Predecessors returns every vertex that id directly depends on (the
// tail of every edge pointing into id).
func (g *Graph) Predecessors(id string) []string {
	var preds []string
	for u, dependents := range g.edges {
		if _, ok := dependents[id]; ok {
			preds = append(preds, u)
		}
	}
	return preds
}

// ExecutableTasks returns every vertex whose status is Pending (or
// Planned, surfaced so the caller can skip it as plan-mode material)
// and whose every predecessor is present in completed.
func (g *Graph) ExecutableTasks(completed map[string]struct{}) []*model.Task {
	var ready []*model.Task
	for id, task := range g.nodes {
		if task.Status != model.StatusPending && task.Status != model.StatusPlanned {
			continue
		}
		allDepsComplete := true
		for _, dep := range g.Predecessors(id) {
			if _, ok := completed[dep]; !ok {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, task)
		}
	}
	return ready
}

// ValidateNoCycles performs a full scan and returns a CycleError if
// any cycle exists anywhere in the graph.
func (g *Graph) ValidateNoCycles() error {
	if cycle := g.findCycle(); cycle != nil {
		return &CycleError{Cycle: cycle}
	}
	return nil
}

// findCycle runs DFS with white/grey/black coloring over the full
// vertex set and returns the first cycle found, or nil if acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		color[id] = white
	}

	var path []string
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		path = append(path, node)

		for neighbor := range g.edges[node] {
			switch color[neighbor] {
			case gray:
				// Back edge: extract the cycle from path.
				start := 0
				for i, n := range path {
					if n == neighbor {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), neighbor)
				return true
			case white:
				if dfs(neighbor) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[node] = black
		return false
	}

	for id := range g.nodes {
		if color[id] == white {
			if dfs(id) {
				return cycle
			}
		}
	}

	return nil
}
