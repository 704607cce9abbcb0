// Package planner runs a validated task graph to completion: it
// topologically layers the tasks, then executes each layer with bounded
// parallelism, threading the results of completed dependencies into the
// tasks that depend on them. A failure in one task does not abort the
// plan; later layers still run, and the aggregate result reports which
// tasks failed.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
	"github.com/codelab-platform/agent-control-plane/pkg/taskgraph"
)

// AgentResolver maps a task's assigned_to label (an agent name or role)
// to a concrete agent ID within a project.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, projectID, assignedTo string) (string, error)
}

// TaskRunner executes a single task's message against an agent and
// returns its raw result payload.
type TaskRunner interface {
	RunTask(ctx context.Context, agentID, taskID, message string) (map[string]any, error)
}

// Config bounds a plan execution.
type Config struct {
	MaxConcurrentTasks int
	TaskTimeout        time.Duration
}

// DefaultConfig matches the reference executor's defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrentTasks: 3, TaskTimeout: 300 * time.Second}
}

// Executor runs task plans level by level.
type Executor struct {
	cfg      Config
	resolver AgentResolver
	runner   TaskRunner
}

// New builds an Executor.
func New(resolver AgentResolver, runner TaskRunner, cfg Config) *Executor {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultConfig().MaxConcurrentTasks
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	return &Executor{cfg: cfg, resolver: resolver, runner: runner}
}

// TaskResult is the outcome of executing one task.
type TaskResult struct {
	TaskID        string
	Success       bool
	Result        map[string]any
	Error         string
	Duration      time.Duration
	AssignedAgent string
}

// PlanResult aggregates every task's outcome across the whole plan.
type PlanResult struct {
	Success        bool
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	TotalCost      float64
	TotalDuration  time.Duration
	TaskResults    map[string]*TaskResult
	Errors         []string
}

// Execute validates projectID's task graph, then runs it level by
// level with up to cfg.MaxConcurrentTasks tasks in flight at once.
func (e *Executor) Execute(ctx context.Context, projectID string, tasks []*models.TaskPlanTask) (*PlanResult, error) {
	if err := taskgraph.Validate(tasks); err != nil {
		return &PlanResult{
			Success:     false,
			TotalTasks:  len(tasks),
			FailedTasks: len(tasks),
			TaskResults: map[string]*TaskResult{},
			Errors:      []string{fmt.Sprintf("plan validation failed: %v", err)},
		}, nil
	}

	byID := make(map[string]*models.TaskPlanTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	levels := taskgraph.Layers(tasks)
	start := time.Now()

	results := make(map[string]*TaskResult, len(tasks))
	var failedIDs []string
	var errs []string
	var mu sync.Mutex

	for _, level := range levels {
		levelResults := e.executeLevel(ctx, projectID, level, byID, results)
		mu.Lock()
		for taskID, r := range levelResults {
			results[taskID] = r
			if !r.Success {
				failedIDs = append(failedIDs, taskID)
				errs = append(errs, r.Error)
			}
		}
		mu.Unlock()
	}

	return &PlanResult{
		Success:        len(failedIDs) == 0,
		TotalTasks:     len(tasks),
		CompletedTasks: len(tasks) - len(failedIDs),
		FailedTasks:    len(failedIDs),
		TotalCost:      taskgraph.TotalEstimatedCost(tasks),
		TotalDuration:  time.Since(start),
		TaskResults:    results,
		Errors:         errs,
	}, nil
}

// executeLevel runs every task ID in level concurrently, bounded by
// cfg.MaxConcurrentTasks, and returns once all have finished.
func (e *Executor) executeLevel(ctx context.Context, projectID string, level []string, byID map[string]*models.TaskPlanTask, previousResults map[string]*TaskResult) map[string]*TaskResult {
	sem := make(chan struct{}, e.cfg.MaxConcurrentTasks)
	out := make(chan *TaskResult, len(level))
	var wg sync.WaitGroup

	for _, taskID := range level {
		taskID := taskID
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out <- e.executeTask(ctx, projectID, taskID, byID, previousResults)
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[string]*TaskResult, len(level))
	for r := range out {
		results[r.TaskID] = r
	}
	return results
}

func (e *Executor) executeTask(ctx context.Context, projectID, taskID string, byID map[string]*models.TaskPlanTask, previousResults map[string]*TaskResult) *TaskResult {
	task, ok := byID[taskID]
	if !ok {
		return &TaskResult{TaskID: taskID, Success: false, Error: fmt.Sprintf("task %s not found in plan", taskID)}
	}

	assignedTo := task.AssignedTo
	if assignedTo == "" {
		assignedTo = "Code"
	}

	agentID, err := e.resolver.ResolveAgent(ctx, projectID, assignedTo)
	if err != nil || agentID == "" {
		return &TaskResult{TaskID: taskID, Success: false, AssignedAgent: assignedTo, Error: fmt.Sprintf("no agent found for %s", assignedTo)}
	}

	message := buildTaskMessage(task, previousResults)

	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	result, err := e.runner.RunTask(taskCtx, agentID, taskID, message)
	duration := time.Since(start)

	if err != nil {
		if taskCtx.Err() == context.DeadlineExceeded {
			return &TaskResult{TaskID: taskID, Success: false, AssignedAgent: assignedTo, Duration: duration, Error: fmt.Sprintf("task execution timeout (%s)", e.cfg.TaskTimeout)}
		}
		return &TaskResult{TaskID: taskID, Success: false, AssignedAgent: assignedTo, Duration: duration, Error: err.Error()}
	}

	return &TaskResult{TaskID: taskID, Success: true, AssignedAgent: assignedTo, Duration: duration, Result: result}
}

// buildTaskMessage appends a summary of completed dependency results to
// the task's own description, giving the agent context it would
// otherwise have to re-derive.
func buildTaskMessage(task *models.TaskPlanTask, previousResults map[string]*TaskResult) string {
	message := task.Description

	var contextLines []string
	for _, depID := range task.DependsOn {
		dep, ok := previousResults[depID]
		if !ok || !dep.Success {
			continue
		}
		contextLines = append(contextLines, fmt.Sprintf("Previous result from %s: %v", depID, dep.Result))
	}
	if len(contextLines) == 0 {
		return message
	}
	return message + "\n\nContext from previous tasks:\n" + strings.Join(contextLines, "\n")
}
