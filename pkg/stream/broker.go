// Package stream implements the in-process, per-pod fan-out broker:
// each active session has a set of local subscriber channels, and every
// broadcast event is also pushed onto a bounded, TTL'd replay buffer so
// a client that reconnects within the buffer window does not lose
// events that landed while it was disconnected.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codelab-platform/agent-control-plane/pkg/cache"
)

const (
	// MaxBufferSize caps how many recent events are retained per session
	// for reconnection replay.
	MaxBufferSize = 100
	// BufferTTL is how long a session's replay buffer survives with no
	// new events before the cache evicts it.
	BufferTTL = 5 * time.Minute
	// HeartbeatInterval is how often an idle connection receives a
	// keep-alive frame.
	HeartbeatInterval = 30 * time.Second
	// MaxEventSize caps a single event's serialized size; oversized
	// payloads are truncated before buffering and broadcast.
	MaxEventSize = 10 * 1024
)

// Event is what the broker delivers to subscribers and stores in the
// replay buffer. The HTTP stream handler converts each Event to its own
// NDJSON frame, one per line.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Broker fans out events to local subscribers and replays buffered
// events to new connections based on a `since` timestamp.
type Broker struct {
	mu            sync.RWMutex
	subs          map[string]map[*subscriber]struct{} // sessionID -> subscriber set
	ownerSessions map[string]map[string]struct{}      // ownerID -> session set, for BroadcastToOwner

	buffer cache.ListCache
}

// NewBroker builds a Broker backed by the given ListCache implementation
// for reconnection replay.
func NewBroker(buffer cache.ListCache) *Broker {
	return &Broker{
		subs:          make(map[string]map[*subscriber]struct{}),
		ownerSessions: make(map[string]map[string]struct{}),
		buffer:        buffer,
	}
}

// Subscribe registers a new local subscriber for sessionID, owned by
// ownerID, and returns a channel of events plus an unsubscribe function.
// The channel is buffered so a slow consumer cannot block Broadcast; if
// it fills, the new event is dropped for that subscriber and a warning
// logged.
func (b *Broker) Subscribe(ownerID, sessionID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 64)}

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*subscriber]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	if ownerID != "" {
		if b.ownerSessions[ownerID] == nil {
			b.ownerSessions[ownerID] = make(map[string]struct{})
		}
		b.ownerSessions[ownerID][sessionID] = struct{}{}
	}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[sessionID]; ok {
			if _, present := set[sub]; present {
				delete(set, sub)
				if !sub.closed {
					sub.closed = true
					close(sub.ch)
				}
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
				if owned, ok := b.ownerSessions[ownerID]; ok {
					delete(owned, sessionID)
					if len(owned) == 0 {
						delete(b.ownerSessions, ownerID)
					}
				}
			}
		}
	}

	return sub.ch, unsubscribe
}

// Broadcast delivers an event to every local subscriber of sessionID and
// appends it to the session's replay buffer, truncating any payload that
// would exceed MaxEventSize once serialized.
func (b *Broker) Broadcast(ctx context.Context, sessionID string, eventType string, payload map[string]any) error {
	ev := Event{Type: eventType, SessionID: sessionID, Timestamp: time.Now(), Payload: payload}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stream: marshal event: %w", err)
	}
	if len(raw) > MaxEventSize {
		ev.Payload = map[string]any{"truncated": true, "original_size": len(raw)}
		raw, err = json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("stream: marshal truncated event: %w", err)
		}
	}

	b.bufferEvent(sessionID, raw)
	b.deliverLocal(sessionID, ev)
	return nil
}

// BroadcastToOwner delivers an event to every session currently
// subscribed to by ownerID, one Broadcast per session. A session with no
// active subscriber for this owner is simply not reached, since the
// broker only learns of a (owner, session) pairing through Subscribe.
func (b *Broker) BroadcastToOwner(ctx context.Context, ownerID string, eventType string, payload map[string]any) error {
	b.mu.RLock()
	sessions := make([]string, 0, len(b.ownerSessions[ownerID]))
	for sid := range b.ownerSessions[ownerID] {
		sessions = append(sessions, sid)
	}
	b.mu.RUnlock()

	var firstErr error
	for _, sid := range sessions {
		if err := b.Broadcast(ctx, sid, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Broker) bufferEvent(sessionID string, raw []byte) {
	key := bufferKey(sessionID)
	b.buffer.ListPush(key, string(raw))
	b.buffer.ListTrim(key, MaxBufferSize)
	b.buffer.Expire(key, BufferTTL)
}

func (b *Broker) deliverLocal(sessionID string, ev Event) {
	b.mu.RLock()
	subs := b.subs[sessionID]
	snapshot := make([]*subscriber, 0, len(subs))
	for s := range subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		select {
		case s.ch <- ev:
		default:
			slog.Warn("stream subscriber channel full, dropping event", "session_id", sessionID)
		}
	}
}

func bufferKey(sessionID string) string {
	return "stream:buffer:" + sessionID
}

// Replay returns buffered events for sessionID that occurred strictly
// after since, in chronological order. The cache stores entries
// newest-first (as pushed); Replay reverses that storage order back to
// chronological before filtering.
func (b *Broker) Replay(sessionID string, since time.Time) []Event {
	raw := b.buffer.ListRange(bufferKey(sessionID))

	chronological := make([]string, len(raw))
	for i, v := range raw {
		chronological[len(raw)-1-i] = v
	}

	var out []Event
	for _, item := range chronological {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			slog.Warn("stream: failed to decode buffered event", "error", err)
			continue
		}
		if ev.Timestamp.After(since) {
			out = append(out, ev)
		}
	}
	return out
}
