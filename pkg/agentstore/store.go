// Package agentstore persists Agent rows and satisfies the narrow
// lookup interfaces workerspace.Manager and router.Router need,
// without either of those packages depending on *sql.DB directly.
package agentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/codelab-platform/agent-control-plane/pkg/apperr"
	"github.com/codelab-platform/agent-control-plane/pkg/config"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// Store persists Agent rows scoped to a project.
type Store struct {
	db      *sql.DB
	schemas map[string]*config.AgentConfigSchema
}

// New builds a Store backed by db. Config validation is opt-in per
// agent kind via SetSchema; a kind with no registered schema accepts
// any config.
func New(db *sql.DB) *Store {
	return &Store{db: db, schemas: map[string]*config.AgentConfigSchema{}}
}

// SetSchema registers the JSON Schema new agents of kind must satisfy.
// Passing a nil schema clears any existing requirement for that kind.
func (s *Store) SetSchema(kind string, schema *config.AgentConfigSchema) {
	if schema == nil {
		delete(s.schemas, kind)
		return
	}
	s.schemas[kind] = schema
}

// Create inserts a new agent under projectID. If kind has a registered
// schema, config must satisfy it.
func (s *Store) Create(ctx context.Context, projectID, name, kind string, cfg map[string]any) (*models.Agent, error) {
	if schema, ok := s.schemas[kind]; ok {
		if err := schema.Validate(cfg); err != nil {
			return nil, fmt.Errorf("agentstore: %w", err)
		}
	}

	agent := &models.Agent{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Kind:      kind,
		Config:    cfg,
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("agentstore: marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, project_id, name, kind, config, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, agent.ID, agent.ProjectID, agent.Name, agent.Kind, configJSON)
	if err != nil {
		return nil, fmt.Errorf("agentstore: create: %w", err)
	}
	return agent, nil
}

// ListAgents returns every agent configured for projectID. It satisfies
// workerspace.AgentLoader.
func (s *Store) ListAgents(ctx context.Context, projectID string) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, kind, config, created_at
		FROM agents WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("agentstore: list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// ListReadyAgents returns every agent eligible for routing under
// projectID. It satisfies router.AgentLister. Every configured agent is
// currently considered ready; there is no separate enablement flag yet.
func (s *Store) ListReadyAgents(ctx context.Context, projectID string) ([]*models.Agent, error) {
	return s.ListAgents(ctx, projectID)
}

// Get loads a single agent by ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, kind, config, created_at
		FROM agents WHERE id = $1
	`, id)

	agent, err := scanAgent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("agentstore: get: %w", err)
	}
	return agent, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(rs rowScanner) (*models.Agent, error) {
	var agent models.Agent
	var configJSON []byte
	if err := rs.Scan(&agent.ID, &agent.ProjectID, &agent.Name, &agent.Kind, &configJSON, &agent.CreatedAt); err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &agent.Config); err != nil {
			return nil, fmt.Errorf("agentstore: unmarshal config: %w", err)
		}
	}
	return &agent, nil
}
