package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

func task(id string, deps ...string) *models.TaskPlanTask {
	return &models.TaskPlanTask{ID: id, DependsOn: deps}
}

func TestValidateRejectsEmptyPlan(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	tasks := []*models.TaskPlanTask{task("t0", "ghost")}
	err := Validate(tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestValidateRejectsCycle(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		task("t0", "t2"),
		task("t1", "t0"),
		task("t2", "t1"),
	}
	err := Validate(tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic dependency")
}

func TestValidateAcceptsDAG(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		task("t0"),
		task("t1", "t0"),
		task("t2", "t0"),
	}
	assert.NoError(t, Validate(tasks))
}

func TestLayersGroupsIndependentTasks(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		task("t0"),
		task("t1", "t0"),
		task("t2", "t0"),
		task("t3", "t1", "t2"),
	}
	layers := Layers(tasks)
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"t0"}, layers[0])
	assert.Equal(t, []string{"t1", "t2"}, layers[1])
	assert.Equal(t, []string{"t3"}, layers[2])
}

func TestLayersOrdersEachLayerLexicographically(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		task("zeta"),
		task("alpha"),
		task("mid", "zeta", "alpha"),
	}
	layers := Layers(tasks)
	require.Len(t, layers, 2)
	assert.Equal(t, []string{"alpha", "zeta"}, layers[0])
	assert.Equal(t, []string{"mid"}, layers[1])
}

func TestLayersSingleChain(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		task("a"),
		task("b", "a"),
		task("c", "b"),
	}
	layers := Layers(tasks)
	require.Len(t, layers, 3)
	for _, l := range layers {
		assert.Len(t, l, 1)
	}
}

func TestTotalEstimatedCost(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		{ID: "t0", Params: map[string]any{"estimated_cost": 0.05}},
		{ID: "t1", Params: map[string]any{"estimated_cost": 0.03}},
		{ID: "t2", Params: map[string]any{}},
	}
	assert.InDelta(t, 0.08, TotalEstimatedCost(tasks), 0.0001)
}

func TestTotalEstimatedDuration(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		{ID: "t0", Params: map[string]any{"estimated_duration_seconds": 12.0}},
		{ID: "t1", Params: map[string]any{"estimated_duration_seconds": 8.0}},
		{ID: "t2", Params: map[string]any{}},
	}
	assert.InDelta(t, 20.0, TotalEstimatedDuration(tasks), 0.0001)
}

func TestAgentsInvolvedDedupesInFirstSeenOrder(t *testing.T) {
	tasks := []*models.TaskPlanTask{
		{ID: "t0", AssignedTo: "Code"},
		{ID: "t1", AssignedTo: "Review"},
		{ID: "t2", AssignedTo: "Code"},
		{ID: "t3", AssignedTo: ""},
	}
	assert.Equal(t, []string{"Code", "Review"}, AgentsInvolved(tasks))
}
