package workflow

import (
	"strings"

	"github.com/BaSui01/hubflow/types"
)

// dependencyEdges computes the full dependency map for a definition:
// explicit DependsOn declarations plus implicit output -> input variable
// linkage (a step consuming variable x depends on every step producing x).
// Keys are step IDs; values are the deduplicated IDs the step depends on,
// in a stable order.
func dependencyEdges(d *Definition) map[string][]string {
	producers := make(map[string][]string) // variable -> producing step IDs, declaration order
	for _, step := range d.Steps {
		for _, out := range step.Outputs {
			producers[out] = append(producers[out], step.ID)
		}
	}

	edges := make(map[string][]string, len(d.Steps))
	for _, step := range d.Steps {
		seen := make(map[string]bool)
		var deps []string
		add := func(id string) {
			if id == step.ID || seen[id] {
				return
			}
			seen[id] = true
			deps = append(deps, id)
		}

		for _, dep := range step.DependsOn {
			add(dep)
		}
		for _, in := range step.Inputs {
			for _, producer := range producers[in] {
				add(producer)
			}
		}
		edges[step.ID] = deps
	}
	return edges
}

// topologicalOrder returns a valid execution order of the definition's steps
// with ties broken by declaration order, so the result is deterministic.
// A cycle in the dependency graph fails with CYCLIC_WORKFLOW naming the
// offending step cycle.
func topologicalOrder(d *Definition, edges map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(d.Steps))
	dependents := make(map[string][]string, len(d.Steps))
	for id, deps := range edges {
		indegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	order := make([]string, 0, len(d.Steps))
	done := make(map[string]bool, len(d.Steps))

	for len(order) < len(d.Steps) {
		// Pick the first declared step whose dependencies are all satisfied.
		picked := ""
		for _, step := range d.Steps {
			if !done[step.ID] && indegree[step.ID] == 0 {
				picked = step.ID
				break
			}
		}
		if picked == "" {
			var remaining []string
			for _, step := range d.Steps {
				if !done[step.ID] {
					remaining = append(remaining, step.ID)
				}
			}
			cycle := findCycle(remaining, edges)
			return nil, types.Errorf(types.ErrCyclicWorkflow,
				"workflow %s has a dependency cycle: %s",
				d.Name, strings.Join(cycle, " -> ")).WithWorkflow(d.Name)
		}

		done[picked] = true
		order = append(order, picked)
		for _, dependent := range dependents[picked] {
			indegree[dependent]--
		}
	}

	return order, nil
}

// findCycle locates one dependency cycle among the remaining steps and
// returns it as a closed path (first element repeated at the end).
func findCycle(remaining []string, edges map[string][]string) []string {
	inRemaining := make(map[string]bool, len(remaining))
	for _, id := range remaining {
		inRemaining[id] = true
	}

	const (
		unvisited = 0
		inStack   = 1
		finished  = 2
	)
	state := make(map[string]int, len(remaining))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		stack = append(stack, id)
		for _, dep := range edges[id] {
			if !inRemaining[dep] {
				continue
			}
			switch state[dep] {
			case inStack:
				// Extract the cycle from the stack.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = finished
		return false
	}

	for _, id := range remaining {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return remaining // unreachable when a cycle exists
}

// executionLevels groups the topological order into levels: every step in a
// level depends only on steps in earlier levels, so steps within one level
// are independent and may run concurrently. Declaration order is preserved
// within each level.
func executionLevels(d *Definition, edges map[string][]string, order []string) [][]string {
	depth := make(map[string]int, len(order))
	for _, id := range order {
		level := 0
		for _, dep := range edges[id] {
			if depth[dep]+1 > level {
				level = depth[dep] + 1
			}
		}
		depth[id] = level
	}

	maxLevel := 0
	for _, l := range depth {
		if l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, step := range d.Steps {
		l := depth[step.ID]
		levels[l] = append(levels[l], step.ID)
	}
	return levels
}
