// Package router picks the best agent for a message when the caller
// hasn't named one: it extracts the capabilities a message seems to
// need from keyword matches, then scores each candidate agent by how
// much of that requirement its declared capabilities cover.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// capabilityKeywords maps a capability name to the phrases whose
// presence in a message implies that capability is needed. Order of
// capabilities doesn't matter; ExtractCapabilities sorts its output for
// determinism.
var capabilityKeywords = map[string][]string{
	"debug": {
		"debug", "bug", "error", "fix", "traceback", "stack trace",
		"not working", "what's wrong",
	},
	"implement_feature": {
		"implement", "write", "create", "build", "generate", "add a",
		"function", "method", "class", "module",
	},
	"explain": {
		"explain", "what is", "how does", "describe", "tell me",
		"help me understand",
	},
	"design": {
		"design", "architecture", "plan", "structure", "approach",
		"propose a solution",
	},
	"test": {
		"test", "unit test", "integration test", "verify", "validate",
	},
}

// fallbackCapability is assigned when no keyword matches, mirroring a
// general-purpose request rather than leaving the set empty.
const fallbackCapability = "explain"

// AgentLister resolves the agents available for routing within a
// project.
type AgentLister interface {
	ListReadyAgents(ctx context.Context, projectID string) ([]*models.Agent, error)
}

// Broadcaster is the narrow seam into the stream broker used to announce
// an agent_switched event to a session's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID string, eventType string, payload map[string]any) error
}

// Router selects an agent for a message based on capability overlap.
type Router struct {
	lister      AgentLister
	broadcaster Broadcaster
}

// New builds a Router. broadcaster may be nil, in which case Route never
// announces an agent switch.
func New(lister AgentLister, broadcaster Broadcaster) *Router {
	return &Router{lister: lister, broadcaster: broadcaster}
}

// Confidence buckets a routing score into a human-facing label.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Decision is the outcome of routing a single message.
type Decision struct {
	SelectedAgentID      string
	AgentName            string
	AgentRole            string
	RoutingScore         float64
	RequiredCapabilities []string
	MatchedCapabilities  []string
	Confidence           Confidence
}

// ExtractCapabilities returns the sorted set of capabilities a message
// appears to require, based on substring keyword matches.
func ExtractCapabilities(message string) []string {
	lower := strings.ToLower(message)
	found := make(map[string]struct{})

	for capability, keywords := range capabilityKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				found[capability] = struct{}{}
				break
			}
		}
	}

	if len(found) == 0 {
		found[fallbackCapability] = struct{}{}
	}

	capabilities := make([]string, 0, len(found))
	for c := range found {
		capabilities = append(capabilities, c)
	}
	sort.Strings(capabilities)
	return capabilities
}

// agentCapabilities reads the declared capability list out of an
// agent's config, tolerating both []string and []any ([]interface{}
// after a JSON round trip) shapes.
func agentCapabilities(agent *models.Agent) []string {
	metadata, ok := agent.Config["metadata"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := metadata["capabilities"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func agentRole(agent *models.Agent) string {
	metadata, ok := agent.Config["metadata"].(map[string]any)
	if !ok {
		return ""
	}
	role, _ := metadata["role"].(string)
	return role
}

// score returns the overlap ratio between required and available
// capabilities, along with which required ones matched. A required set
// that matches nothing still scores above zero so an otherwise-idle
// agent can be picked over no agent at all.
func score(required, available []string) (float64, []string) {
	if len(required) == 0 {
		return 1.0, nil
	}

	availableSet := make(map[string]struct{}, len(available))
	for _, a := range available {
		availableSet[a] = struct{}{}
	}

	var matched []string
	for _, r := range required {
		if _, ok := availableSet[r]; ok {
			matched = append(matched, r)
		}
	}

	if len(matched) == 0 {
		return 0.3, nil
	}
	return float64(len(matched)) / float64(len(required)), matched
}

func confidenceFor(s float64) Confidence {
	switch {
	case s >= 0.8:
		return ConfidenceHigh
	case s >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Route picks the best-matching ready agent in projectID for message. If
// sessionID is non-empty and the selection differs from previousAgentID
// (itself non-empty), Route broadcasts an agent_switched event to the
// session before returning.
func (r *Router) Route(ctx context.Context, projectID, sessionID, previousAgentID, message string) (*Decision, error) {
	required := ExtractCapabilities(message)

	agents, err := r.lister.ListReadyAgents(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("router: list ready agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("router: no ready agents found for project %s", projectID)
	}

	var best *models.Agent
	var bestScore float64
	var bestMatched []string

	for _, agent := range agents {
		s, matched := score(required, agentCapabilities(agent))
		if s > bestScore || best == nil {
			bestScore = s
			best = agent
			bestMatched = matched
		}
	}

	decision := &Decision{
		SelectedAgentID:      best.ID,
		AgentName:            best.Name,
		AgentRole:            agentRole(best),
		RoutingScore:         bestScore,
		RequiredCapabilities: required,
		MatchedCapabilities:  bestMatched,
		Confidence:           confidenceFor(bestScore),
	}

	if r.broadcaster != nil && sessionID != "" && previousAgentID != "" && previousAgentID != decision.SelectedAgentID {
		_ = r.broadcaster.Broadcast(ctx, sessionID, "agent_switched", map[string]any{
			"from_agent_id": previousAgentID,
			"to_agent_id":   decision.SelectedAgentID,
			"agent_name":    decision.AgentName,
			"routing_score": decision.RoutingScore,
		})
	}

	return decision, nil
}
