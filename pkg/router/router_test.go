package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

type stubLister struct {
	agents []*models.Agent
	err    error
}

func (s stubLister) ListReadyAgents(ctx context.Context, projectID string) ([]*models.Agent, error) {
	return s.agents, s.err
}

func agentWithCapabilities(id, name, role string, caps ...string) *models.Agent {
	anyCaps := make([]any, len(caps))
	for i, c := range caps {
		anyCaps[i] = c
	}
	return &models.Agent{
		ID:   id,
		Name: name,
		Config: map[string]any{
			"metadata": map[string]any{
				"role":         role,
				"capabilities": anyCaps,
			},
		},
	}
}

func TestExtractCapabilitiesMatchesKeywords(t *testing.T) {
	caps := ExtractCapabilities("Can you debug this error in auth.py?")
	assert.Contains(t, caps, "debug")
}

func TestExtractCapabilitiesDefaultsToExplain(t *testing.T) {
	caps := ExtractCapabilities("asdkjfh qwoeiru")
	assert.Equal(t, []string{"explain"}, caps)
}

type stubBroadcaster struct {
	calls []string
}

func (s *stubBroadcaster) Broadcast(ctx context.Context, sessionID string, eventType string, payload map[string]any) error {
	s.calls = append(s.calls, eventType)
	return nil
}

func TestRouteSelectsBestCapabilityMatch(t *testing.T) {
	lister := stubLister{agents: []*models.Agent{
		agentWithCapabilities("a1", "Writer", "writer", "explain"),
		agentWithCapabilities("a2", "Debugger", "debugger", "debug", "test"),
	}}
	r := New(lister, nil)

	decision, err := r.Route(context.Background(), "p1", "s1", "", "help me debug this crash")
	require.NoError(t, err)
	assert.Equal(t, "a2", decision.SelectedAgentID)
	assert.Equal(t, ConfidenceHigh, decision.Confidence)
}

func TestRouteFallsBackWhenNoCapabilityMatches(t *testing.T) {
	lister := stubLister{agents: []*models.Agent{
		agentWithCapabilities("a1", "Writer", "writer", "implement_feature"),
	}}
	r := New(lister, nil)

	decision, err := r.Route(context.Background(), "p1", "s1", "", "debug this please")
	require.NoError(t, err)
	assert.Equal(t, "a1", decision.SelectedAgentID)
	assert.Equal(t, ConfidenceLow, decision.Confidence)
}

func TestRouteErrorsWhenNoAgentsReady(t *testing.T) {
	r := New(stubLister{agents: nil}, nil)
	_, err := r.Route(context.Background(), "p1", "s1", "", "hello")
	assert.Error(t, err)
}

func TestRouteBroadcastsAgentSwitchedWhenSelectionDiffersFromPrevious(t *testing.T) {
	lister := stubLister{agents: []*models.Agent{
		agentWithCapabilities("a1", "Writer", "writer", "debug"),
	}}
	b := &stubBroadcaster{}
	r := New(lister, b)

	_, err := r.Route(context.Background(), "p1", "s1", "a0", "debug this crash")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_switched"}, b.calls)
}

func TestRouteDoesNotBroadcastWhenSelectionMatchesPrevious(t *testing.T) {
	lister := stubLister{agents: []*models.Agent{
		agentWithCapabilities("a1", "Writer", "writer", "debug"),
	}}
	b := &stubBroadcaster{}
	r := New(lister, b)

	_, err := r.Route(context.Background(), "p1", "s1", "a1", "debug this crash")
	require.NoError(t, err)
	assert.Empty(t, b.calls)
}
