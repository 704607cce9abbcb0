// Package approval implements the pending -> {approved, rejected,
// timed_out} one-shot state machine that gates risky tasks and plans
// behind explicit user consent, plus the cost/duration/task-count
// thresholds that decide whether a request can skip that gate entirely.
package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codelab-platform/agent-control-plane/pkg/apperr"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
	"github.com/codelab-platform/agent-control-plane/pkg/risk"
)

// Thresholds below match the reference service's auto-approval policy.
const (
	LowRiskCostThreshold = 0.10

	PlanHighRiskCost        = 1.00
	PlanHighRiskDuration    = 300.0
	PlanMediumRiskCost      = 0.10
	PlanMediumRiskDuration  = 30.0
	PlanMinTasksForApproval = 3

	DefaultTimeout         = 5 * time.Minute
	TimeoutWarningWindow   = 60 * time.Second
)

// Notifier is the narrow seam into the stream broker used to push
// approval-required/resolved/timeout events to every session the owning
// user currently has open, since an approval is scoped to a user, not a
// single chat session.
type Notifier interface {
	BroadcastToOwner(ctx context.Context, ownerID string, eventType string, payload map[string]any) error
}

// Manager owns the approval lifecycle of every approval request in the
// database; a single Manager serves all users and projects.
type Manager struct {
	db       *sql.DB
	notifier Notifier
}

// NewManager builds a Manager backed by db for persistence and an
// optional notifier for real-time approval events; notifier may be nil.
func NewManager(db *sql.DB, notifier Notifier) *Manager {
	return &Manager{db: db, notifier: notifier}
}

// AssessPlanRisk derives HIGH/MEDIUM/LOW for a whole plan from its
// aggregate cost, duration, and task count, independent of any single
// task's own risk.Level.
func AssessPlanRisk(totalCost, totalDuration float64, taskCount int) risk.Level {
	if totalCost > PlanHighRiskCost || totalDuration > PlanHighRiskDuration {
		return risk.High
	}
	if totalCost > PlanMediumRiskCost || totalDuration > PlanMediumRiskDuration {
		return risk.Medium
	}
	if taskCount >= PlanMinTasksForApproval {
		return risk.Medium
	}
	return risk.Low
}

// ShouldAutoApprove reports whether a request can skip the pending state
// entirely: only LOW risk operations under the cost threshold qualify.
func ShouldAutoApprove(level risk.Level, estimatedCost float64) bool {
	return level == risk.Low && estimatedCost < LowRiskCostThreshold
}

// RequestTaskApproval creates (and persists) an approval request for a
// single risky task invocation, auto-approving immediately when the
// policy allows it.
func (m *Manager) RequestTaskApproval(ctx context.Context, ownerID, taskID, toolName string, params map[string]any, timeout time.Duration) (*models.ApprovalRequest, error) {
	level := risk.Classify(toolName, params)
	autoApprove := ShouldAutoApprove(level, 0.0)

	payload := map[string]any{
		"tool_name":  toolName,
		"parameters": params,
		"task_id":    taskID,
	}

	req, err := m.create(ctx, ownerID, models.ApprovalKindTask, taskID, "", level, payload, timeout, autoApprove)
	if err != nil {
		return nil, err
	}

	m.notify(ctx, ownerID, "approval_required", req)
	return req, nil
}

// RequestPlanApproval creates an approval request for an entire plan.
// agentsInvolved lists the distinct agents the plan's tasks are assigned
// to, carried into the payload so an approving user can see at a glance
// who will act on their behalf.
func (m *Manager) RequestPlanApproval(ctx context.Context, ownerID, planID string, totalCost, totalDuration float64, taskCount int, agentsInvolved []string, timeout time.Duration) (*models.ApprovalRequest, error) {
	level := AssessPlanRisk(totalCost, totalDuration, taskCount)
	autoApprove := ShouldAutoApprove(level, totalCost)

	payload := map[string]any{
		"plan_id":            planID,
		"estimated_cost":     totalCost,
		"estimated_duration": totalDuration,
		"task_count":         taskCount,
		"agents_involved":    agentsInvolved,
	}

	req, err := m.create(ctx, ownerID, models.ApprovalKindPlan, "", planID, level, payload, timeout, autoApprove)
	if err != nil {
		return nil, err
	}

	m.notify(ctx, ownerID, "approval_required", req)
	return req, nil
}

func (m *Manager) create(ctx context.Context, ownerID string, kind models.ApprovalKind, taskID, planID string, level risk.Level, payload map[string]any, timeout time.Duration, autoApprove bool) (*models.ApprovalRequest, error) {
	now := time.Now()
	req := &models.ApprovalRequest{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Kind:      kind,
		TaskID:    taskID,
		PlanID:    planID,
		RiskLevel: string(level),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}

	if autoApprove {
		resolvedAt := now
		req.Status = models.ApprovalApproved
		req.ResolvedAt = &resolvedAt
		req.Payload["auto_approved"] = true
	} else {
		req.Status = models.ApprovalPending
		req.Payload["auto_approved"] = false
		req.Payload["timeout_seconds"] = int(timeout.Seconds())
	}

	if err := m.insert(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (m *Manager) insert(ctx context.Context, req *models.ApprovalRequest) error {
	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("approval: marshal payload: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO approval_requests (id, owner_id, kind, task_id, plan_id, risk_level, payload, status, created_at, expires_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, req.ID, req.OwnerID, req.Kind, nullIfEmpty(req.TaskID), nullIfEmpty(req.PlanID), req.RiskLevel, payloadJSON, req.Status, req.CreatedAt, req.ExpiresAt, req.ResolvedAt)
	if err != nil {
		return fmt.Errorf("approval: insert: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Get loads an approval request by ID, applying an opportunistic timeout
// check: a pending request past its expiry is transitioned to timed_out
// as a side effect of being read, matching the reference implementation
// which only sweeps timeouts lazily rather than via a background ticker.
func (m *Manager) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	req, _, err := m.getAndCheckTimeout(ctx, id)
	return req, err
}

// getAndCheckTimeout loads a request and reports, via the second return
// value, whether this call is the one that just transitioned it from
// pending to timed_out. Confirm/Reject use that distinction to tell a
// request that was already resolved before this call (ErrAlreadyResolved)
// from one this call discovered was expired (ErrGone).
func (m *Manager) getAndCheckTimeout(ctx context.Context, id string) (*models.ApprovalRequest, bool, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if req.Status != models.ApprovalPending {
		return req, false, nil
	}

	now := time.Now()
	if now.After(req.ExpiresAt) {
		if err := m.transition(ctx, req, models.ApprovalTimedOut, "auto-rejected after timeout"); err != nil {
			return nil, false, err
		}
		m.notify(ctx, req.OwnerID, "approval_timeout", req)
		return req, true, nil
	}

	// Warning broadcast is idempotent by design (spec: "safe to fire
	// multiple times; consumers deduplicate"), so it's re-sent on every
	// access within the window rather than tracked with extra state.
	if req.ExpiresAt.Sub(now) <= TimeoutWarningWindow {
		m.notify(ctx, req.OwnerID, "approval_timeout_warning", req)
	}
	return req, false, nil
}

func (m *Manager) load(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, task_id, plan_id, risk_level, payload, status, created_at, expires_at, resolved_at
		FROM approval_requests WHERE id = $1
	`, id)

	var req models.ApprovalRequest
	var taskID, planID sql.NullString
	var payloadJSON []byte
	var resolvedAt sql.NullTime
	if err := row.Scan(&req.ID, &req.OwnerID, &req.Kind, &taskID, &planID, &req.RiskLevel, &payloadJSON, &req.Status, &req.CreatedAt, &req.ExpiresAt, &resolvedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("approval: load: %w", err)
	}
	req.TaskID = taskID.String
	req.PlanID = planID.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	if len(payloadJSON) > 0 {
		_ = json.Unmarshal(payloadJSON, &req.Payload)
	}
	return &req, nil
}

// Confirm transitions a pending approval to approved. It is a one-shot
// operation: calling it again fails with apperr.ErrAlreadyResolved if the
// request was already resolved before this call, or apperr.ErrGone if
// this call is the one that discovers the request expired.
func (m *Manager) Confirm(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	req, timedOutNow, err := m.getAndCheckTimeout(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ApprovalPending {
		if timedOutNow {
			return nil, apperr.ErrGone
		}
		return nil, apperr.ErrAlreadyResolved
	}
	if err := m.transition(ctx, req, models.ApprovalApproved, "approved by user"); err != nil {
		return nil, err
	}
	m.notify(ctx, req.OwnerID, "approval_resolved", req)
	return req, nil
}

// Reject transitions a pending approval to rejected.
func (m *Manager) Reject(ctx context.Context, id, reason string) (*models.ApprovalRequest, error) {
	req, timedOutNow, err := m.getAndCheckTimeout(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ApprovalPending {
		if timedOutNow {
			return nil, apperr.ErrGone
		}
		return nil, apperr.ErrAlreadyResolved
	}
	if reason == "" {
		reason = "rejected by user"
	}
	if err := m.transition(ctx, req, models.ApprovalRejected, reason); err != nil {
		return nil, err
	}
	m.notify(ctx, req.OwnerID, "approval_resolved", req)
	return req, nil
}

func (m *Manager) transition(ctx context.Context, req *models.ApprovalRequest, status models.ApprovalStatus, decision string) error {
	now := time.Now()
	req.Status = status
	req.ResolvedAt = &now
	req.Payload["decision"] = decision

	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("approval: marshal payload: %w", err)
	}
	res, err := m.db.ExecContext(ctx, `
		UPDATE approval_requests SET status = $2, resolved_at = $3, payload = $4 WHERE id = $1 AND status = 'pending'
	`, req.ID, status, now, payloadJSON)
	if err != nil {
		return fmt.Errorf("approval: transition: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrAlreadyResolved
	}
	return nil
}

func (m *Manager) notify(ctx context.Context, ownerID, eventType string, req *models.ApprovalRequest) {
	if m.notifier == nil {
		return
	}
	_ = m.notifier.BroadcastToOwner(ctx, ownerID, eventType, map[string]any{
		"approval_id": req.ID,
		"kind":        req.Kind,
		"status":      req.Status,
		"risk_level":  req.RiskLevel,
		"payload":     req.Payload,
	})
}
