// Package graph provides a dependency graph for subtask scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ferrule/maestro/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found among subtasks.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of subtask dependencies.
// Subtasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[string]*models.Subtask
	// edges maps subtask ID to the IDs it depends on.
	edges map[string][]string
	// completed tracks which subtasks have been marked complete.
	completed map[string]bool
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Subtask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the graph from a slice of subtasks. It returns an error
// if a dependency references an unknown subtask or a cycle is detected.
func (g *DependencyGraph) Build(subtasks []*models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range subtasks {
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
		// Subtasks already completed in a prior run (resume path) count
		// as done for readiness computation.
		if st.Status == models.SubtaskStatusCompleted {
			g.completed[st.ID] = true
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs DFS with coloring to detect back edges.
// Caller must hold the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// GetReady returns the IDs of subtasks whose dependencies are all complete
// and that are not themselves terminal. IDs are sorted for deterministic
// wave composition.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, st := range g.nodes {
		if g.completed[id] || st.Status.Terminal() {
			continue
		}

		allDone := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}

	sort.Strings(ready)
	return ready
}

// MarkComplete marks a subtask as completed, unblocking its dependents in
// subsequent GetReady calls.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// Remaining returns the number of subtasks that are neither complete nor in
// a terminal status.
func (g *DependencyGraph) Remaining() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for id, st := range g.nodes {
		if !g.completed[id] && !st.Status.Terminal() {
			n++
		}
	}
	return n
}

// Get returns the subtask for an ID, or nil if not found.
func (g *DependencyGraph) Get(id string) *models.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of subtasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs a subtask depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Dependents returns the IDs of subtasks that depend on the given one,
// directly or transitively. Used to propagate skips after a failure.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reverse := make(map[string][]string, len(g.edges))
	for node, deps := range g.edges {
		for _, dep := range deps {
			reverse[dep] = append(reverse[dep], node)
		}
	}

	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range reverse[cur] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// DumpEdges renders the dependency edges for postmortem logging when a
// cycle is detected at execution time.
func (g *DependencyGraph) DumpEdges() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := ""
	for _, id := range ids {
		out += fmt.Sprintf("%s -> %v\n", id, g.edges[id])
	}
	return out
}
