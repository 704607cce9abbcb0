// Package taskgraph validates a plan's task DAG and computes the
// dependency-respecting parallel execution layering consumed by the plan
// executor.
package taskgraph

import (
	"fmt"
	"sort"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// Validate checks that every DependsOn reference resolves to a task in
// the same plan and that the dependency graph is acyclic.
func Validate(tasks []*models.TaskPlanTask) error {
	if len(tasks) == 0 {
		return fmt.Errorf("task graph: no tasks provided")
	}

	byID := make(map[string]*models.TaskPlanTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("task graph: task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}

	if cyclePath, ok := detectCycle(tasks); ok {
		return fmt.Errorf("task graph: cyclic dependency detected: %v", cyclePath)
	}
	return nil
}

// detectCycle walks the dependency graph with an explicit stack (white/
// gray/black coloring) rather than recursion, so a pathologically deep
// plan cannot blow the goroutine stack.
func detectCycle(tasks []*models.TaskPlanTask) ([]string, bool) {
	const (
		white = 0 // unvisited
		gray  = 1 // on current DFS path
		black = 2 // fully explored
	)

	byID := make(map[string]*models.TaskPlanTask, len(tasks))
	color := make(map[string]int, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		color[t.ID] = white
	}

	type frame struct {
		id     string
		depIdx int
	}

	for _, start := range tasks {
		if color[start.ID] != white {
			continue
		}
		stack := []frame{{id: start.ID}}
		color[start.ID] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := byID[top.id].DependsOn

			if top.depIdx >= len(deps) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}

			next := deps[top.depIdx]
			top.depIdx++

			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, frame{id: next})
			case gray:
				path := make([]string, 0, len(stack)+1)
				for _, f := range stack {
					path = append(path, f.id)
				}
				return append(path, next), true
			case black:
				// already fully explored along a different path
			}
		}
	}
	return nil, false
}

// Layers groups tasks into Kahn-style topological layers: layer N+1
// contains only tasks whose dependencies are entirely satisfied by
// layers 0..N. Tasks within a layer have no dependency relationship and
// may run concurrently; within a layer, IDs are sorted lexicographically
// so Layers is deterministic across runs regardless of map iteration
// order. Layers assumes Validate has already succeeded.
func Layers(tasks []*models.TaskPlanTask) [][]string {
	byID := make(map[string]*models.TaskPlanTask, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		inDegree[t.ID] = len(t.DependsOn)
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var current []string
	for id, deg := range inDegree {
		if deg == 0 {
			current = append(current, id)
		}
	}
	sort.Strings(current)

	var layers [][]string
	for len(current) > 0 {
		layers = append(layers, current)
		var next []string
		for _, id := range current {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}
	return layers
}

// TotalEstimatedCost sums the "estimated_cost" params field across tasks,
// used by the approval manager's plan-level cost threshold check.
func TotalEstimatedCost(tasks []*models.TaskPlanTask) float64 {
	var total float64
	for _, t := range tasks {
		if v, ok := t.Params["estimated_cost"].(float64); ok {
			total += v
		}
	}
	return total
}

// TotalEstimatedDuration sums the "estimated_duration_seconds" params
// field across tasks, used alongside TotalEstimatedCost for the plan-level
// risk assessment.
func TotalEstimatedDuration(tasks []*models.TaskPlanTask) float64 {
	var total float64
	for _, t := range tasks {
		if v, ok := t.Params["estimated_duration_seconds"].(float64); ok {
			total += v
		}
	}
	return total
}

// AgentsInvolved returns the distinct, non-empty AssignedTo labels across
// tasks, in first-seen order, for display alongside a plan approval.
func AgentsInvolved(tasks []*models.TaskPlanTask) []string {
	seen := make(map[string]bool, len(tasks))
	var agents []string
	for _, t := range tasks {
		if t.AssignedTo == "" || seen[t.AssignedTo] {
			continue
		}
		seen[t.AssignedTo] = true
		agents = append(agents, t.AssignedTo)
	}
	return agents
}
