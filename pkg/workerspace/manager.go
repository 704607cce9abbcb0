package workerspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codelab-platform/agent-control-plane/pkg/agentbus"
	"github.com/codelab-platform/agent-control-plane/pkg/contextstore"
	"github.com/codelab-platform/agent-control-plane/pkg/llm"
)

// Config controls the resource limits applied to every space the
// Manager creates.
type Config struct {
	BusMaxInFlight int
	BusTimeout     time.Duration
}

// DefaultConfig returns conservative per-space limits suitable for a
// single-pod deployment.
func DefaultConfig() Config {
	return Config{BusMaxInFlight: 16, BusTimeout: 2 * time.Minute}
}

// Manager hands out exactly one Space per (userID, projectID) pair,
// creating it lazily on first request and keeping it alive until
// explicitly removed.
type Manager struct {
	cfg      Config
	loader   AgentLoader
	embedder llm.Client

	mu     sync.Mutex
	spaces map[string]*Space
}

// NewManager builds a Manager. embedder may be nil; it is threaded
// through to each space's context store and chat completions.
func NewManager(loader AgentLoader, embedder llm.Client, cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		loader:   loader,
		embedder: embedder,
		spaces:   make(map[string]*Space),
	}
}

func spaceKey(userID, projectID string) string {
	return userID + ":" + projectID
}

// GetOrCreate returns the existing space for (userID, projectID), or
// creates and initializes a new one. Concurrent callers racing on the
// same key block on the second lock acquisition rather than each
// building a space; only the first one wins.
func (m *Manager) GetOrCreate(ctx context.Context, userID, projectID string) (*Space, error) {
	key := spaceKey(userID, projectID)

	m.mu.Lock()
	if sp, ok := m.spaces[key]; ok {
		m.mu.Unlock()
		return sp, nil
	}

	bus := agentbus.New(context.Background(), m.cfg.BusMaxInFlight, m.cfg.BusTimeout)
	sp := newSpace(userID, projectID, bus, contextstore.New(m.embedder), m.loader, m.embedder)
	m.spaces[key] = sp
	m.mu.Unlock()

	if err := sp.Initialize(ctx); err != nil {
		m.mu.Lock()
		delete(m.spaces, key)
		m.mu.Unlock()
		return nil, fmt.Errorf("workerspace: create space for %s/%s: %w", userID, projectID, err)
	}
	return sp, nil
}

// Get returns the existing space for (userID, projectID) without
// creating one.
func (m *Manager) Get(userID, projectID string) (*Space, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[spaceKey(userID, projectID)]
	return sp, ok
}

// Remove tears down and forgets the space for (userID, projectID).
func (m *Manager) Remove(userID, projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := spaceKey(userID, projectID)
	sp, ok := m.spaces[key]
	if !ok {
		return false
	}
	sp.Bus().Shutdown()
	delete(m.spaces, key)
	return true
}

// RemoveUserSpaces tears down every space belonging to userID, e.g.
// when the user is deleted, and returns how many were removed.
func (m *Manager) RemoveUserSpaces(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := userID + ":"
	removed := 0
	for key, sp := range m.spaces {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			sp.Bus().Shutdown()
			delete(m.spaces, key)
			removed++
		}
	}
	return removed
}

// CleanupAll shuts down every space the manager owns. Called once at
// process shutdown.
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, sp := range m.spaces {
		sp.Bus().Shutdown()
		delete(m.spaces, key)
	}
}

// Stats summarizes every active space, keyed the same way the manager
// indexes them internally.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.spaces))
	for key, sp := range m.spaces {
		out[key] = sp.Stats()
	}
	return out
}
