// Package models contains the persisted entities of the control plane.
package models

import "time"

// User is a tenant-scoped human or service principal. Authentication is
// out of scope here; handlers receive an already-authenticated user ID.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Project groups agents and chat sessions under a single owner.
type Project struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Agent is a configured assistant instance scoped to a project.
// Config is a polymorphic document validated against pkg/config's agent
// schema at write time, not at load time.
type Agent struct {
	ID        string         `json:"id" db:"id"`
	ProjectID string         `json:"project_id" db:"project_id"`
	Name      string         `json:"name" db:"name"`
	Kind      string         `json:"kind" db:"kind"`
	Config    map[string]any `json:"config" db:"config"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// ChatSessionStatus enumerates the lifecycle of a ChatSession.
type ChatSessionStatus string

const (
	ChatSessionActive    ChatSessionStatus = "active"
	ChatSessionArchived  ChatSessionStatus = "archived"
	ChatSessionDeleted   ChatSessionStatus = "deleted"
)

// ChatSession is a single conversation thread between a user and an agent.
type ChatSession struct {
	ID        string            `json:"id" db:"id"`
	UserID    string            `json:"user_id" db:"user_id"`
	ProjectID string            `json:"project_id" db:"project_id"`
	AgentID   string            `json:"agent_id" db:"agent_id"`
	Status    ChatSessionStatus `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// MessageRole distinguishes the author of a Message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one turn in a ChatSession.
type Message struct {
	ID        string      `json:"id" db:"id"`
	SessionID string      `json:"session_id" db:"session_id"`
	Role      MessageRole `json:"role" db:"role"`
	Content   string      `json:"content" db:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// TaskPlanStatus enumerates the lifecycle of a TaskPlan.
type TaskPlanStatus string

const (
	TaskPlanPending   TaskPlanStatus = "pending"
	TaskPlanRunning   TaskPlanStatus = "running"
	TaskPlanCompleted TaskPlanStatus = "completed"
	TaskPlanFailed    TaskPlanStatus = "failed"
	TaskPlanCancelled TaskPlanStatus = "cancelled"
)

// TaskPlan is a DAG of TaskPlanTasks executed by the plan executor.
type TaskPlan struct {
	ID        string         `json:"id" db:"id"`
	SessionID string         `json:"session_id" db:"session_id"`
	Status    TaskPlanStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// TaskPlanTaskStatus enumerates the lifecycle of a single task node.
type TaskPlanTaskStatus string

const (
	TaskStatusPending TaskPlanTaskStatus = "pending"
	TaskStatusRunning TaskPlanTaskStatus = "running"
	TaskStatusDone    TaskPlanTaskStatus = "done"
	TaskStatusFailed  TaskPlanTaskStatus = "failed"
	TaskStatusSkipped TaskPlanTaskStatus = "skipped"
)

// TaskPlanTask is one node of a TaskPlan's DAG. DependsOn references
// sibling task IDs within the same plan.
type TaskPlanTask struct {
	ID          string             `json:"id" db:"id"`
	PlanID      string             `json:"plan_id" db:"plan_id"`
	Description string             `json:"description" db:"description"`
	AssignedTo  string             `json:"assigned_to" db:"assigned_to"`
	ToolName    string             `json:"tool_name" db:"tool_name"`
	Params      map[string]any     `json:"params" db:"params"`
	DependsOn   []string           `json:"depends_on" db:"depends_on"`
	Status      TaskPlanTaskStatus `json:"status" db:"status"`
	Result      map[string]any     `json:"result,omitempty" db:"result"`
	Error       string             `json:"error,omitempty" db:"error"`
	StartedAt   *time.Time         `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty" db:"finished_at"`
}

// ApprovalStatus enumerates the one-shot transitions of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimedOut ApprovalStatus = "timed_out"
)

// ApprovalKind distinguishes a single-task approval from a whole-plan one.
type ApprovalKind string

const (
	ApprovalKindTask ApprovalKind = "task"
	ApprovalKindPlan ApprovalKind = "plan"
)

// ApprovalRequest gates a risky task or plan behind explicit user consent.
type ApprovalRequest struct {
	ID         string         `json:"id" db:"id"`
	OwnerID    string         `json:"owner_id" db:"owner_id"`
	Kind       ApprovalKind   `json:"kind" db:"kind"`
	TaskID     string         `json:"task_id,omitempty" db:"task_id"`
	PlanID     string         `json:"plan_id,omitempty" db:"plan_id"`
	RiskLevel  string         `json:"risk_level" db:"risk_level"`
	Payload    map[string]any `json:"payload" db:"payload"`
	Status     ApprovalStatus `json:"status" db:"status"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at" db:"expires_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
}

// EventOutbox is a durable, transactionally-written event awaiting
// publication to the stream broker.
type EventOutbox struct {
	ID            string         `json:"id" db:"id"`
	EventType     string         `json:"event_type" db:"event_type"`
	AggregateType string         `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id" db:"aggregate_id"`
	UserID        string         `json:"user_id,omitempty" db:"user_id"`
	ProjectID     string         `json:"project_id,omitempty" db:"project_id"`
	Payload       map[string]any `json:"payload" db:"payload"`
	Status        string         `json:"status" db:"status"`
	RetryCount    int            `json:"retry_count" db:"retry_count"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty" db:"next_retry_at"`
	LastError     string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	PublishedAt   *time.Time     `json:"published_at,omitempty" db:"published_at"`
}
