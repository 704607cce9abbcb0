package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codelab-platform/agent-control-plane/pkg/approval"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
	"github.com/codelab-platform/agent-control-plane/pkg/planner"
	"github.com/codelab-platform/agent-control-plane/pkg/planrunner"
	"github.com/codelab-platform/agent-control-plane/pkg/planstore"
	"github.com/codelab-platform/agent-control-plane/pkg/taskgraph"
)

// submitPlanHandler persists a multi-task plan against the owning
// session's project and requests approval to run it. A plan whose
// aggregate risk qualifies for auto-approval runs immediately; anything
// else waits on the ordinary approval confirm/reject endpoints.
func (s *Server) submitPlanHandler(c *gin.Context) {
	uid, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session")

	var req submitPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	session, err := s.chatStore.GetSession(ctx, sessionID, uid)
	if err != nil {
		respondError(c, err)
		return
	}

	specs := make([]planstore.TaskSpec, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		specs = append(specs, planstore.TaskSpec{
			ID:          t.ID,
			Description: t.Description,
			AssignedTo:  t.AssignedTo,
			ToolName:    t.ToolName,
			Params:      t.Params,
			DependsOn:   t.DependsOn,
		})
	}

	plan, tasks, err := s.plans.CreatePlan(ctx, sessionID, specs)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := taskgraph.Validate(tasks); err != nil {
		_ = s.plans.UpdatePlanStatus(ctx, plan.ID, models.TaskPlanFailed)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	totalCost := taskgraph.TotalEstimatedCost(tasks)
	totalDuration := taskgraph.TotalEstimatedDuration(tasks)
	agentsInvolved := taskgraph.AgentsInvolved(tasks)

	approvalReq, err := s.approvals.RequestPlanApproval(ctx, uid, plan.ID, totalCost, totalDuration, len(tasks), agentsInvolved, approval.DefaultTimeout)
	if err != nil {
		respondError(c, err)
		return
	}

	if approvalReq.Status == models.ApprovalApproved {
		s.runPlan(ctx, uid, session.ProjectID, plan.ID)
		if updated, err := s.plans.GetPlan(ctx, plan.ID); err == nil {
			plan = updated
		}
		if updated, err := s.plans.ListTasks(ctx, plan.ID); err == nil {
			tasks = updated
		}
	}

	taskResponses := make([]planTaskResponse, 0, len(tasks))
	for _, t := range tasks {
		taskResponses = append(taskResponses, toPlanTaskResponse(t))
	}

	c.JSON(http.StatusCreated, submitPlanResponse{
		PlanID:   plan.ID,
		Status:   string(plan.Status),
		Tasks:    taskResponses,
		Approval: toApprovalResponse(approvalReq),
	})
}

// runPlan executes every task in planID against userID's worker space
// in projectID and persists each task's outcome. Errors are recorded
// per task rather than aborting the whole plan; planner.Executor
// already tolerates individual task failures and keeps running later
// layers.
func (s *Server) runPlan(ctx context.Context, userID, projectID, planID string) {
	tasks, err := s.plans.ListTasks(ctx, planID)
	if err != nil || len(tasks) == 0 {
		return
	}

	_ = s.plans.UpdatePlanStatus(ctx, planID, models.TaskPlanRunning)

	runner := planrunner.New(s.agents, s.spaces, userID, projectID)
	executor := planner.New(runner, runner, planner.DefaultConfig())

	result, err := executor.Execute(ctx, projectID, tasks)
	if err != nil {
		_ = s.plans.UpdatePlanStatus(ctx, planID, models.TaskPlanFailed)
		return
	}

	now := time.Now()
	for _, task := range tasks {
		taskResult, ok := result.TaskResults[task.ID]
		if !ok {
			continue
		}
		status := models.TaskStatusDone
		if !taskResult.Success {
			status = models.TaskStatusFailed
		}
		_ = s.plans.RecordTaskResult(ctx, task.ID, status, taskResult.Result, taskResult.Error, now.Add(-taskResult.Duration), now)
	}

	finalStatus := models.TaskPlanCompleted
	if !result.Success {
		finalStatus = models.TaskPlanFailed
	}
	_ = s.plans.UpdatePlanStatus(ctx, planID, finalStatus)
}

// confirmApprovalPlan runs planID once its approval has been manually
// confirmed, resolving its owning project from the plan's originating
// session.
func (s *Server) confirmApprovalPlan(ctx context.Context, approvalReq *models.ApprovalRequest) {
	plan, err := s.plans.GetPlan(ctx, approvalReq.PlanID)
	if err != nil {
		return
	}
	session, err := s.chatStore.GetSession(ctx, plan.SessionID, approvalReq.OwnerID)
	if err != nil {
		return
	}
	s.runPlan(ctx, approvalReq.OwnerID, session.ProjectID, plan.ID)
}
