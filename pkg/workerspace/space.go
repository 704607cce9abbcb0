// Package workerspace owns the per-(user, project) runtime resources an
// agent needs to run: the project's loaded agents, the agent bus they
// share, and their retrieval context store. A Space is created lazily on first use and
// torn down explicitly; it never outlives the Manager that created it.
package workerspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codelab-platform/agent-control-plane/pkg/agentbus"
	"github.com/codelab-platform/agent-control-plane/pkg/contextstore"
	"github.com/codelab-platform/agent-control-plane/pkg/llm"
	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// AgentLoader resolves the agents configured for a project. Implemented
// by the persistence layer; kept as an interface here so Space can be
// tested without a database.
type AgentLoader interface {
	ListAgents(ctx context.Context, projectID string) ([]*models.Agent, error)
}

// Space holds the live state for one (userID, projectID) pair: which
// agents are registered, their context store, and the shared bus they
// dispatch tool calls through.
type Space struct {
	UserID    string
	ProjectID string

	bus          *agentbus.Bus
	contextStore *contextstore.Store
	loader       AgentLoader
	llmClient    llm.Client

	mu            sync.RWMutex
	agents        map[string]*models.Agent
	initialized   bool
	initializedAt time.Time
}

func newSpace(userID, projectID string, bus *agentbus.Bus, contextStore *contextstore.Store, loader AgentLoader, llmClient llm.Client) *Space {
	return &Space{
		UserID:       userID,
		ProjectID:    projectID,
		bus:          bus,
		contextStore: contextStore,
		loader:       loader,
		llmClient:    llmClient,
		agents:       make(map[string]*models.Agent),
	}
}

// Initialize loads the project's agents once. Subsequent calls are a
// no-op; use Reset to force a reload.
func (s *Space) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	agents, err := s.loader.ListAgents(ctx, s.ProjectID)
	if err != nil {
		return fmt.Errorf("workerspace: load agents for project %s: %w", s.ProjectID, err)
	}
	for _, a := range agents {
		s.agents[a.ID] = a
	}

	s.initialized = true
	s.initializedAt = time.Now()
	return nil
}

// GetAgent returns the cached agent, initializing the space on first
// access if needed.
func (s *Space) GetAgent(ctx context.Context, agentID string) (*models.Agent, bool, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	return a, ok, nil
}

// AddAgent registers a new agent in this space without a database
// round trip; the caller is responsible for persisting it first.
func (s *Space) AddAgent(agent *models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
}

// RemoveAgent drops an agent from the space, cancelling any in-flight
// invocations dispatched on its behalf is the bus's responsibility, not
// the space's: the space only owns membership.
func (s *Space) RemoveAgent(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return false
	}
	delete(s.agents, agentID)
	return true
}

// ListAgentIDs returns the IDs of every agent currently active in this
// space, in no particular order.
func (s *Space) ListAgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids
}

// ContextStore exposes the space's retrieval context store.
func (s *Space) ContextStore() *contextstore.Store {
	return s.contextStore
}

// Bus exposes the agent bus shared across the space's agents.
func (s *Space) Bus() *agentbus.Bus {
	return s.bus
}

// IsHealthy reports whether the space is initialized and owns at least
// one agent.
func (s *Space) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized && len(s.agents) > 0
}

// Stats summarizes the space for diagnostics endpoints.
type Stats struct {
	UserID        string
	ProjectID     string
	Initialized   bool
	InitializedAt time.Time
	AgentCount    int
	Healthy       bool
}

// Stats returns a snapshot of the space's current state.
func (s *Space) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		UserID:        s.UserID,
		ProjectID:     s.ProjectID,
		Initialized:   s.initialized,
		InitializedAt: s.initializedAt,
		AgentCount:    len(s.agents),
		Healthy:       s.initialized && len(s.agents) > 0,
	}
}

// Reset clears loaded agents and marks the space uninitialized, leaving
// it ready for a fresh Initialize call. The space's bus keeps running.
func (s *Space) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = make(map[string]*models.Agent)
	s.initialized = false
}

// HandleResult is the outcome of direct-executing a message through one
// of the space's agents.
type HandleResult struct {
	AgentID     string
	AgentName   string
	Response    string
	ContextUsed int
	Duration    time.Duration
}

const contextSearchLimit = 10

// Handle executes a message against agentID: it retrieves relevant
// prior context, completes a chat turn through the configured LLM
// client, and records the exchange back into the context store for
// future retrieval. If no llm.Client was configured the response is a
// fixed placeholder rather than an error, so a space remains usable in
// environments without a wired provider.
func (s *Space) Handle(ctx context.Context, agentID, userMessage string) (*HandleResult, error) {
	agent, ok, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("workerspace: agent not found: %s", agentID)
	}

	start := time.Now()

	var contextDocs []contextstore.Document
	if s.contextStore != nil {
		contextDocs, _ = s.contextStore.Search(ctx, s.UserID, agentID, userMessage, contextSearchLimit)
	}

	response, err := s.complete(ctx, agent, userMessage, contextDocs)
	if err != nil {
		return nil, fmt.Errorf("workerspace: complete: %w", err)
	}

	if s.contextStore != nil {
		_, _ = s.contextStore.Add(ctx, s.UserID, agentID, fmt.Sprintf("User: %s\nAssistant: %s", userMessage, response))
	}

	return &HandleResult{
		AgentID:     agentID,
		AgentName:   agent.Name,
		Response:    response,
		ContextUsed: len(contextDocs),
		Duration:    time.Since(start),
	}, nil
}

func (s *Space) complete(ctx context.Context, agent *models.Agent, userMessage string, contextDocs []contextstore.Document) (string, error) {
	if s.llmClient == nil {
		return "no LLM provider configured", nil
	}

	messages := []llm.ChatMessage{
		{Role: "system", Content: systemPromptFor(agent, contextDocs)},
		{Role: "user", Content: userMessage},
	}
	return s.llmClient.Chat(ctx, messages)
}

func systemPromptFor(agent *models.Agent, contextDocs []contextstore.Document) string {
	prompt := fmt.Sprintf("You are %s, an assistant agent of kind %q.", agent.Name, agent.Kind)
	if len(contextDocs) == 0 {
		return prompt
	}
	prompt += "\n\nRelevant prior context:"
	for _, d := range contextDocs {
		prompt += "\n- " + d.Text
	}
	return prompt
}
