// Package planstore persists task plans and their task graphs: the
// durable record a plan approval and its eventual execution operate
// against.
package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codelab-platform/agent-control-plane/pkg/apperr"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// Store persists TaskPlan and TaskPlanTask rows.
type Store struct {
	db *sql.DB
}

// New builds a Store backed by db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// TaskSpec is the caller-supplied description of one task node, before
// IDs are assigned and the row is persisted.
type TaskSpec struct {
	ID          string
	Description string
	AssignedTo  string
	ToolName    string
	Params      map[string]any
	DependsOn   []string
}

// CreatePlan persists a new plan and its tasks in pending state, within
// a single transaction so a partially-written graph never becomes
// visible.
func (s *Store) CreatePlan(ctx context.Context, sessionID string, specs []TaskSpec) (*models.TaskPlan, []*models.TaskPlanTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("planstore: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	plan := &models.TaskPlan{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    models.TaskPlanPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO task_plans (id, session_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, plan.ID, plan.SessionID, plan.Status, plan.CreatedAt, plan.UpdatedAt); err != nil {
		return nil, nil, fmt.Errorf("planstore: insert plan: %w", err)
	}

	// Assign a persisted ID per spec up front, keyed by the caller's
	// spec.ID, so DependsOn references within the same submission can
	// point at sibling tasks before any row exists.
	generatedIDs := make([]string, len(specs))
	idByKey := make(map[string]string, len(specs))
	for i, spec := range specs {
		generatedIDs[i] = uuid.NewString()
		if spec.ID != "" {
			idByKey[spec.ID] = generatedIDs[i]
		}
	}

	tasks := make([]*models.TaskPlanTask, 0, len(specs))
	for i, spec := range specs {
		taskID := generatedIDs[i]

		dependsOn := make([]string, 0, len(spec.DependsOn))
		for _, dep := range spec.DependsOn {
			if resolved, ok := idByKey[dep]; ok {
				dependsOn = append(dependsOn, resolved)
			}
		}

		params := spec.Params
		if params == nil {
			params = map[string]any{}
		}
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("planstore: marshal params: %w", err)
		}

		task := &models.TaskPlanTask{
			ID:          taskID,
			PlanID:      plan.ID,
			Description: spec.Description,
			AssignedTo:  spec.AssignedTo,
			ToolName:    spec.ToolName,
			Params:      params,
			DependsOn:   dependsOn,
			Status:      models.TaskStatusPending,
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_plan_tasks (id, plan_id, description, assigned_to, tool_name, params, depends_on, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, task.ID, task.PlanID, task.Description, task.AssignedTo, task.ToolName, paramsJSON, task.DependsOn, task.Status); err != nil {
			return nil, nil, fmt.Errorf("planstore: insert task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("planstore: commit: %w", err)
	}
	return plan, tasks, nil
}

// GetPlan loads a plan by ID.
func (s *Store) GetPlan(ctx context.Context, id string) (*models.TaskPlan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, status, created_at, updated_at
		FROM task_plans WHERE id = $1
	`, id)

	var plan models.TaskPlan
	if err := row.Scan(&plan.ID, &plan.SessionID, &plan.Status, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("planstore: get plan: %w", err)
	}
	return &plan, nil
}

// ListTasks returns every task belonging to planID.
func (s *Store) ListTasks(ctx context.Context, planID string) ([]*models.TaskPlanTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, description, assigned_to, tool_name, params, depends_on, status, result, error, started_at, finished_at
		FROM task_plan_tasks WHERE plan_id = $1
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("planstore: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.TaskPlanTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdatePlanStatus transitions a plan's status.
func (s *Store) UpdatePlanStatus(ctx context.Context, planID string, status models.TaskPlanStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_plans SET status = $2, updated_at = now() WHERE id = $1
	`, planID, status)
	if err != nil {
		return fmt.Errorf("planstore: update plan status: %w", err)
	}
	return nil
}

// RecordTaskResult persists the outcome of running a single task.
func (s *Store) RecordTaskResult(ctx context.Context, taskID string, status models.TaskPlanTaskStatus, result map[string]any, taskErr string, startedAt, finishedAt time.Time) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("planstore: marshal result: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_plan_tasks
		SET status = $2, result = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`, taskID, status, resultJSON, taskErr, startedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("planstore: record task result: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(rs rowScanner) (*models.TaskPlanTask, error) {
	var task models.TaskPlanTask
	var paramsJSON, resultJSON []byte
	var startedAt, finishedAt sql.NullTime
	if err := rs.Scan(&task.ID, &task.PlanID, &task.Description, &task.AssignedTo, &task.ToolName,
		&paramsJSON, &task.DependsOn, &task.Status, &resultJSON, &task.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &task.Params); err != nil {
			return nil, fmt.Errorf("planstore: unmarshal params: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &task.Result); err != nil {
			return nil, fmt.Errorf("planstore: unmarshal result: %w", err)
		}
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		task.FinishedAt = &finishedAt.Time
	}
	return &task, nil
}
