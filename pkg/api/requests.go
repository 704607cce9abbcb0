package api

// createSessionRequest is the body of POST /api/v1/chat/sessions.
type createSessionRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	ProjectID string `json:"project_id" binding:"required"`
	AgentID   string `json:"agent_id"`
}

// postMessageRequest is the body of POST /api/v1/chat/:session/message.
// TargetAgent is optional; when empty the router picks an agent.
type postMessageRequest struct {
	Content     string `json:"content" binding:"required"`
	TargetAgent string `json:"target_agent"`
}

// rejectApprovalRequest is the body of POST /api/v1/approvals/:id/reject.
type rejectApprovalRequest struct {
	Reason string `json:"reason"`
}

// assessToolRequest is the body of POST /api/v1/tools/assess.
type assessToolRequest struct {
	ToolName string         `json:"tool_name" binding:"required"`
	Params   map[string]any `json:"params"`
}

// submitPlanTaskRequest describes one task node within a submitted plan.
// ID is a caller-chosen key used only to express DependsOn edges within
// the same submission; it is discarded once the tasks are persisted
// under their own generated IDs.
type submitPlanTaskRequest struct {
	ID          string         `json:"id" binding:"required"`
	Description string         `json:"description" binding:"required"`
	AssignedTo  string         `json:"assigned_to"`
	ToolName    string         `json:"tool_name"`
	Params      map[string]any `json:"params"`
	DependsOn   []string       `json:"depends_on"`
}

// submitPlanRequest is the body of POST /api/v1/chat/:session/plan.
type submitPlanRequest struct {
	Tasks []submitPlanTaskRequest `json:"tasks" binding:"required,min=1"`
}
