package workerspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

type stubLoader struct {
	agents map[string][]*models.Agent
	calls  int
}

func (s *stubLoader) ListAgents(ctx context.Context, projectID string) ([]*models.Agent, error) {
	s.calls++
	return s.agents[projectID], nil
}

func TestGetOrCreateReturnsSameSpaceForSamePair(t *testing.T) {
	loader := &stubLoader{agents: map[string][]*models.Agent{
		"p1": {{ID: "agent-1", ProjectID: "p1", Name: "helper"}},
	}}
	m := NewManager(loader, nil, DefaultConfig())

	sp1, err := m.GetOrCreate(context.Background(), "u1", "p1")
	require.NoError(t, err)
	sp2, err := m.GetOrCreate(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.Same(t, sp1, sp2)
	assert.Equal(t, 1, loader.calls)
}

func TestGetOrCreateLoadsAgentsOnInitialize(t *testing.T) {
	loader := &stubLoader{agents: map[string][]*models.Agent{
		"p1": {{ID: "agent-1", ProjectID: "p1", Name: "helper"}},
	}}
	m := NewManager(loader, nil, DefaultConfig())

	sp, err := m.GetOrCreate(context.Background(), "u1", "p1")
	require.NoError(t, err)

	agent, ok, err := sp.GetAgent(context.Background(), "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "helper", agent.Name)
	assert.True(t, sp.IsHealthy())
}

func TestRemoveTearsDownSpace(t *testing.T) {
	loader := &stubLoader{agents: map[string][]*models.Agent{"p1": {}}}
	m := NewManager(loader, nil, DefaultConfig())

	_, err := m.GetOrCreate(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.True(t, m.Remove("u1", "p1"))
	assert.False(t, m.Remove("u1", "p1"))

	_, ok := m.Get("u1", "p1")
	assert.False(t, ok)
}

func TestRemoveUserSpacesOnlyAffectsThatUser(t *testing.T) {
	loader := &stubLoader{agents: map[string][]*models.Agent{"p1": {}, "p2": {}}}
	m := NewManager(loader, nil, DefaultConfig())

	_, err := m.GetOrCreate(context.Background(), "u1", "p1")
	require.NoError(t, err)
	_, err = m.GetOrCreate(context.Background(), "u1", "p2")
	require.NoError(t, err)
	_, err = m.GetOrCreate(context.Background(), "u2", "p1")
	require.NoError(t, err)

	removed := m.RemoveUserSpaces("u1")
	assert.Equal(t, 2, removed)

	_, ok := m.Get("u2", "p1")
	assert.True(t, ok)
}

func TestSpaceAddAndRemoveAgent(t *testing.T) {
	loader := &stubLoader{agents: map[string][]*models.Agent{"p1": {}}}
	m := NewManager(loader, nil, DefaultConfig())
	sp, err := m.GetOrCreate(context.Background(), "u1", "p1")
	require.NoError(t, err)

	sp.AddAgent(&models.Agent{ID: "agent-2", ProjectID: "p1", Name: "second"})
	assert.Len(t, sp.ListAgentIDs(), 1)

	assert.True(t, sp.RemoveAgent("agent-2"))
	assert.False(t, sp.RemoveAgent("agent-2"))
}
