package api

import (
	"time"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionResponse(s *models.ChatSession) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		ProjectID: s.ProjectID,
		AgentID:   s.AgentID,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
	}
}

type messageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m *models.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type postMessageResponse struct {
	UserMessage      messageResponse `json:"user_message"`
	AssistantMessage messageResponse `json:"assistant_message"`
	AgentID          string          `json:"agent_id"`
	ContextUsed      int             `json:"context_used"`
}

type approvalResponse struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Kind       string         `json:"kind"`
	TaskID     string         `json:"task_id,omitempty"`
	PlanID     string         `json:"plan_id,omitempty"`
	RiskLevel  string         `json:"risk_level"`
	Payload    map[string]any `json:"payload"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

func toApprovalResponse(a *models.ApprovalRequest) approvalResponse {
	return approvalResponse{
		ID:         a.ID,
		OwnerID:    a.OwnerID,
		Kind:       string(a.Kind),
		TaskID:     a.TaskID,
		PlanID:     a.PlanID,
		RiskLevel:  a.RiskLevel,
		Payload:    a.Payload,
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
		ExpiresAt:  a.ExpiresAt,
		ResolvedAt: a.ResolvedAt,
	}
}

type planTaskResponse struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	AssignedTo  string         `json:"assigned_to"`
	ToolName    string         `json:"tool_name"`
	Status      string         `json:"status"`
	DependsOn   []string       `json:"depends_on"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func toPlanTaskResponse(t *models.TaskPlanTask) planTaskResponse {
	return planTaskResponse{
		ID:          t.ID,
		Description: t.Description,
		AssignedTo:  t.AssignedTo,
		ToolName:    t.ToolName,
		Status:      string(t.Status),
		DependsOn:   t.DependsOn,
		Result:      t.Result,
		Error:       t.Error,
	}
}

// submitPlanResponse is returned by POST /api/v1/chat/:session/plan: the
// persisted plan, its tasks, and the approval request gating its
// execution (already resolved if the plan's risk qualified for
// auto-approval).
type submitPlanResponse struct {
	PlanID   string             `json:"plan_id"`
	Status   string             `json:"status"`
	Tasks    []planTaskResponse `json:"tasks"`
	Approval approvalResponse   `json:"approval"`
}

// wireFrame is one line of the NDJSON event stream, matching the
// documented wire shape exactly: event_type, payload, timestamp, and a
// nullable session_id.
type wireFrame struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID *string        `json:"session_id"`
}
