// Package outbox implements the transactional outbox pattern: domain
// writes and event records are committed together, and a separate
// publisher polls for pending events and delivers them to the stream
// broker with retry and exponential backoff.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// Repository persists EventOutbox rows. RecordEvent is intended to run
// inside the same transaction as the domain write it accompanies.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a *sql.DB for outbox access. Writes that must share
// a caller's transaction go through RecordEvent with a Querier instead.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Querier is satisfied by both *sql.DB and *sql.Tx, letting callers
// record an event in the same transaction as the write that produced it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RecordEvent inserts a new pending EventOutbox row using q, which should
// be the active transaction for the write the event describes. It does
// not commit; the caller's transaction boundary governs atomicity.
func RecordEvent(ctx context.Context, q Querier, eventType, aggregateType, aggregateID, userID, projectID string, payload map[string]any) (string, error) {
	id := uuid.NewString()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("outbox: marshal payload: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO event_outbox (id, event_type, aggregate_type, aggregate_id, user_id, project_id, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, now())
	`, id, eventType, aggregateType, aggregateID, nullIfEmpty(userID), nullIfEmpty(projectID), payloadJSON)
	if err != nil {
		return "", fmt.Errorf("outbox: record event: %w", err)
	}
	return id, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ClaimPending returns up to limit pending events that are due (never
// attempted, or with a next_retry_at that has passed), locking the rows with
// FOR UPDATE SKIP LOCKED so multiple publisher replicas never double-send
// the same event.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]*models.EventOutbox, *sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("outbox: begin claim tx: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_type, aggregate_type, aggregate_id, user_id, project_id, payload, status, retry_count, next_retry_at, last_error, created_at, published_at
		FROM event_outbox
		WHERE status = 'pending' AND ((next_retry_at IS NULL AND retry_count = 0) OR next_retry_at <= now())
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("outbox: claim pending: %w", err)
	}
	defer rows.Close()

	var events []*models.EventOutbox
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	return events, tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(rs rowScanner) (*models.EventOutbox, error) {
	var ev models.EventOutbox
	var payloadJSON []byte
	var userID, projectID, lastError sql.NullString
	var nextRetryAt, publishedAt sql.NullTime
	if err := rs.Scan(&ev.ID, &ev.EventType, &ev.AggregateType, &ev.AggregateID, &userID, &projectID, &payloadJSON, &ev.Status, &ev.RetryCount, &nextRetryAt, &lastError, &ev.CreatedAt, &publishedAt); err != nil {
		return nil, fmt.Errorf("outbox: scan event: %w", err)
	}
	ev.UserID = userID.String
	ev.ProjectID = projectID.String
	ev.LastError = lastError.String
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		ev.NextRetryAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		ev.PublishedAt = &t
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
			return nil, fmt.Errorf("outbox: unmarshal payload: %w", err)
		}
	}
	return &ev, nil
}

// MarkPublished marks an event published within tx, the same transaction
// that claimed it.
func MarkPublished(ctx context.Context, tx *sql.Tx, eventID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE event_outbox SET status = 'published', published_at = now() WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("outbox: mark published: %w", err)
	}
	return nil
}

// MarkFailed records a publish failure within tx. If nextRetryAt is nil
// the event has exhausted its retries and will not be polled again until
// an operator calls Reprocess.
func MarkFailed(ctx context.Context, tx *sql.Tx, eventID string, retryCount int, lastError string, nextRetryAt *time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE event_outbox
		SET retry_count = $2, last_error = $3, next_retry_at = $4
		WHERE id = $1
	`, eventID, retryCount, lastError, nextRetryAt)
	if err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}

// Get fetches a single event by ID.
func (r *Repository) Get(ctx context.Context, eventID string) (*models.EventOutbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, event_type, aggregate_type, aggregate_id, user_id, project_id, payload, status, retry_count, next_retry_at, last_error, created_at, published_at
		FROM event_outbox WHERE id = $1
	`, eventID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Reprocess resets a permanently-failed event back to pending so the
// publisher will pick it up again on its next poll. It is a no-op
// (besides a warning, left to the caller to log) for events that have
// not exhausted their retries.
func (r *Repository) Reprocess(ctx context.Context, eventID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'pending', retry_count = 0, next_retry_at = NULL, last_error = NULL
		WHERE id = $1 AND next_retry_at IS NULL AND retry_count > 0
	`, eventID)
	if err != nil {
		return fmt.Errorf("outbox: reprocess: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("outbox: event %s is not in a reprocessable state", eventID)
	}
	return nil
}
