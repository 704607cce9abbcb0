// Package chatstore persists chat sessions and messages, the two
// entities the request handlers write to on the happy path alongside
// an outbox row, all inside one transaction.
package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/codelab-platform/agent-control-plane/pkg/apperr"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting callers run
// a store method inside a caller-owned transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists ChatSession and Message rows.
type Store struct {
	db *sql.DB
}

// New builds a Store backed by db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying pool, so callers can open a transaction
// shared with other stores (e.g. the outbox repository).
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateSession inserts a new chat session scoped to a user and
// project, optionally pinned to a specific agent.
func (s *Store) CreateSession(ctx context.Context, userID, projectID, agentID string) (*models.ChatSession, error) {
	session := &models.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		AgentID:   agentID,
		Status:    models.ChatSessionActive,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, project_id, agent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, session.ID, session.UserID, session.ProjectID, nullIfEmpty(session.AgentID), session.Status)
	if err != nil {
		return nil, fmt.Errorf("chatstore: create session: %w", err)
	}
	return session, nil
}

// GetSession loads a session by ID, scoped to userID for isolation.
func (s *Store) GetSession(ctx context.Context, id, userID string) (*models.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, project_id, agent_id, status, created_at, updated_at
		FROM chat_sessions WHERE id = $1 AND user_id = $2
	`, id, userID)

	var session models.ChatSession
	var agentID sql.NullString
	if err := row.Scan(&session.ID, &session.UserID, &session.ProjectID, &agentID, &session.Status, &session.CreatedAt, &session.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("chatstore: get session: %w", err)
	}
	session.AgentID = agentID.String
	return &session, nil
}

// SaveMessage inserts a message using q, so it can be committed
// atomically alongside an outbox row by the caller's transaction.
func (s *Store) SaveMessage(ctx context.Context, q Querier, sessionID string, role models.MessageRole, content string, metadata map[string]any) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
	}

	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("chatstore: marshal message metadata: %w", err)
		}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("chatstore: save message: %w", err)
	}
	return msg, nil
}

// UpdateSessionAgent records the agent a session's most recent turn was
// routed to, so the next routing decision has a previous agent to
// compare against.
func (s *Store) UpdateSessionAgent(ctx context.Context, sessionID, agentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET agent_id = $2, updated_at = now() WHERE id = $1
	`, sessionID, agentID)
	if err != nil {
		return fmt.Errorf("chatstore: update session agent: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
