package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

type stubResolver struct {
	agentFor map[string]string
}

func (s stubResolver) ResolveAgent(ctx context.Context, projectID, assignedTo string) (string, error) {
	id, ok := s.agentFor[assignedTo]
	if !ok {
		return "", fmt.Errorf("no agent for %s", assignedTo)
	}
	return id, nil
}

type stubRunner struct {
	mu       sync.Mutex
	maxInUse int
	inUse    int
	delay    time.Duration
	fail     map[string]bool
}

func (s *stubRunner) RunTask(ctx context.Context, agentID, taskID, message string) (map[string]any, error) {
	s.mu.Lock()
	s.inUse++
	if s.inUse > s.maxInUse {
		s.maxInUse = s.inUse
	}
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			s.mu.Lock()
			s.inUse--
			s.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	s.inUse--
	s.mu.Unlock()

	if s.fail[taskID] {
		return nil, fmt.Errorf("task %s failed", taskID)
	}
	return map[string]any{"message": message}, nil
}

func task(id, assignedTo, description string, deps ...string) *models.TaskPlanTask {
	return &models.TaskPlanTask{ID: id, AssignedTo: assignedTo, Description: description, DependsOn: deps}
}

func TestExecuteRunsDependentTasksAndAggregatesSuccess(t *testing.T) {
	resolver := stubResolver{agentFor: map[string]string{"Code": "agent-1"}}
	runner := &stubRunner{fail: map[string]bool{}}
	e := New(resolver, runner, DefaultConfig())

	tasks := []*models.TaskPlanTask{
		task("t0", "Code", "do a"),
		task("t1", "Code", "do b", "t0"),
	}

	result, err := e.Execute(context.Background(), "p1", tasks)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.CompletedTasks)
	assert.Equal(t, 0, result.FailedTasks)
	assert.Contains(t, result.TaskResults["t1"].Result["message"], "do b")
}

func TestExecuteBoundsConcurrencyPerLevel(t *testing.T) {
	resolver := stubResolver{agentFor: map[string]string{"Code": "agent-1"}}
	runner := &stubRunner{delay: 20 * time.Millisecond}
	e := New(resolver, runner, Config{MaxConcurrentTasks: 2, TaskTimeout: time.Second})

	tasks := []*models.TaskPlanTask{
		task("t0", "Code", "a"),
		task("t1", "Code", "b"),
		task("t2", "Code", "c"),
		task("t3", "Code", "d"),
	}

	_, err := e.Execute(context.Background(), "p1", tasks)
	require.NoError(t, err)
	assert.LessOrEqual(t, runner.maxInUse, 2)
}

func TestExecuteContinuesAfterTaskFailure(t *testing.T) {
	resolver := stubResolver{agentFor: map[string]string{"Code": "agent-1"}}
	runner := &stubRunner{fail: map[string]bool{"t0": true}}
	e := New(resolver, runner, DefaultConfig())

	tasks := []*models.TaskPlanTask{
		task("t0", "Code", "a"),
		task("t1", "Code", "b", "t0"),
	}

	result, err := e.Execute(context.Background(), "p1", tasks)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedTasks)
	assert.True(t, result.TaskResults["t1"].Success)
}

func TestExecuteReportsMissingAgent(t *testing.T) {
	resolver := stubResolver{agentFor: map[string]string{}}
	runner := &stubRunner{}
	e := New(resolver, runner, DefaultConfig())

	tasks := []*models.TaskPlanTask{task("t0", "Ops", "a")}

	result, err := e.Execute(context.Background(), "p1", tasks)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.TaskResults["t0"].Error, "no agent found")
}

func TestExecuteRejectsCyclicPlan(t *testing.T) {
	resolver := stubResolver{}
	runner := &stubRunner{}
	e := New(resolver, runner, DefaultConfig())

	tasks := []*models.TaskPlanTask{
		task("t0", "Code", "a", "t1"),
		task("t1", "Code", "b", "t0"),
	}

	result, err := e.Execute(context.Background(), "p1", tasks)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, len(tasks), result.FailedTasks)
}
