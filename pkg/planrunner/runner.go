// Package planrunner adapts the agent store and worker space manager
// into the narrow AgentResolver/TaskRunner seams the planner package
// executes a task plan against.
package planrunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/codelab-platform/agent-control-plane/pkg/agentstore"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
	"github.com/codelab-platform/agent-control-plane/pkg/workerspace"
)

// Runner resolves a plan task's assigned_to label to a concrete agent
// and runs it through that user's worker space, one project at a time.
type Runner struct {
	agents    *agentstore.Store
	spaces    *workerspace.Manager
	userID    string
	projectID string
}

// New builds a Runner scoped to a single (userID, projectID) pair,
// matching the same scoping a worker space itself uses.
func New(agents *agentstore.Store, spaces *workerspace.Manager, userID, projectID string) *Runner {
	return &Runner{agents: agents, spaces: spaces, userID: userID, projectID: projectID}
}

// ResolveAgent matches assignedTo against a ready agent's name first,
// then its declared role, falling back to the first ready agent so a
// plan authored with a loose role label still runs somewhere rather
// than stalling the whole plan.
func (r *Runner) ResolveAgent(ctx context.Context, projectID, assignedTo string) (string, error) {
	agents, err := r.agents.ListReadyAgents(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("planrunner: list ready agents: %w", err)
	}
	if len(agents) == 0 {
		return "", fmt.Errorf("planrunner: no ready agents in project %s", projectID)
	}

	if agent := matchByName(agents, assignedTo); agent != nil {
		return agent.ID, nil
	}
	if agent := matchByRole(agents, assignedTo); agent != nil {
		return agent.ID, nil
	}
	return agents[0].ID, nil
}

func matchByName(agents []*models.Agent, name string) *models.Agent {
	for _, a := range agents {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	return nil
}

func matchByRole(agents []*models.Agent, role string) *models.Agent {
	for _, a := range agents {
		metadata, ok := a.Config["metadata"].(map[string]any)
		if !ok {
			continue
		}
		if r, _ := metadata["role"].(string); strings.EqualFold(r, role) {
			return a
		}
	}
	return nil
}

// RunTask hands the task's message to agentID within this Runner's
// worker space and flattens the result into the plain map the planner
// persists as the task's result.
func (r *Runner) RunTask(ctx context.Context, agentID, taskID, message string) (map[string]any, error) {
	space, err := r.spaces.GetOrCreate(ctx, r.userID, r.projectID)
	if err != nil {
		return nil, fmt.Errorf("planrunner: get worker space: %w", err)
	}

	result, err := space.Handle(ctx, agentID, message)
	if err != nil {
		return nil, fmt.Errorf("planrunner: run task %s: %w", taskID, err)
	}

	return map[string]any{
		"response":     result.Response,
		"agent_id":     result.AgentID,
		"context_used": result.ContextUsed,
	}, nil
}
