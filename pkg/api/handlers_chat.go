package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
	"github.com/codelab-platform/agent-control-plane/pkg/outbox"
	"github.com/codelab-platform/agent-control-plane/pkg/stream"
)

// userID reads the caller identity passed by whatever authentication
// layer sits in front of this service; authenticating the header itself
// is out of scope here, matching models.User's doc comment.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func requireUserID(c *gin.Context) (string, bool) {
	id := userID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return "", false
	}
	return id, true
}

func (s *Server) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.chatStore.CreateSession(c.Request.Context(), req.UserID, req.ProjectID, req.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

// postMessageHandler implements the single-transaction chat turn: the
// user message, an outbox row for it, the agent's response, and an
// outbox row for the response all commit together or not at all. The
// agent call itself runs inside that same transaction's lifetime so a
// failure after a successful completion still rolls back the persisted
// user message rather than leaving it orphaned.
func (s *Server) postMessageHandler(c *gin.Context) {
	uid, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session")

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	session, err := s.chatStore.GetSession(ctx, sessionID, uid)
	if err != nil {
		respondError(c, err)
		return
	}

	agentID := req.TargetAgent
	if agentID == "" {
		decision, err := s.routerSvc.Route(ctx, session.ProjectID, sessionID, session.AgentID, req.Content)
		if err != nil {
			respondError(c, err)
			return
		}
		agentID = decision.SelectedAgentID
		if agentID != session.AgentID {
			_ = s.chatStore.UpdateSessionAgent(ctx, sessionID, agentID)
		}
	}

	space, err := s.spaces.GetOrCreate(ctx, uid, session.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}

	tx, err := s.chatStore.DB().BeginTx(ctx, nil)
	if err != nil {
		respondError(c, fmt.Errorf("api: begin message transaction: %w", err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	userMsg, err := s.chatStore.SaveMessage(ctx, tx, sessionID, models.MessageRoleUser, req.Content, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := outbox.RecordEvent(ctx, tx, "message_created", "chat_session", sessionID, uid, session.ProjectID, map[string]any{
		"session_id": sessionID,
		"message_id": userMsg.ID,
		"role":       string(userMsg.Role),
		"content":    userMsg.Content,
	}); err != nil {
		respondError(c, err)
		return
	}

	result, err := space.Handle(ctx, agentID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	assistantMsg, err := s.chatStore.SaveMessage(ctx, tx, sessionID, models.MessageRoleAssistant, result.Response, map[string]any{
		"agent_id":     result.AgentID,
		"context_used": result.ContextUsed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := outbox.RecordEvent(ctx, tx, "message_created", "chat_session", sessionID, uid, session.ProjectID, map[string]any{
		"session_id": sessionID,
		"message_id": assistantMsg.ID,
		"role":       string(assistantMsg.Role),
		"content":    assistantMsg.Content,
	}); err != nil {
		respondError(c, err)
		return
	}

	if err := tx.Commit(); err != nil {
		respondError(c, fmt.Errorf("api: commit message transaction: %w", err))
		return
	}

	c.JSON(http.StatusOK, postMessageResponse{
		UserMessage:      toMessageResponse(userMsg),
		AssistantMessage: toMessageResponse(assistantMsg),
		AgentID:          result.AgentID,
		ContextUsed:      result.ContextUsed,
	})
}

// streamEventsHandler serves the NDJSON event stream for a session:
// buffered replay of anything since the ?since timestamp, then live
// events as they're broadcast, with a heartbeat frame on the same
// cadence the broker buffers against.
func (s *Server) streamEventsHandler(c *gin.Context) {
	uid, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session")

	if _, err := s.chatStore.GetSession(c.Request.Context(), sessionID, uid); err != nil {
		respondError(c, err)
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		since = parsed
	}

	ch, unsubscribe := s.broker.Subscribe(uid, sessionID)
	defer unsubscribe()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	w := c.Writer
	flusher, canFlush := w.(http.Flusher)

	writeFrame := func(ev stream.Event) bool {
		frame := wireFrame{EventType: ev.Type, Payload: ev.Payload, Timestamp: ev.Timestamp}
		if ev.SessionID != "" {
			sid := ev.SessionID
			frame.SessionID = &sid
		}
		raw, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		raw = append(raw, '\n')
		if _, err := w.Write(raw); err != nil {
			return false
		}
		if canFlush {
			flusher.Flush()
		}
		return true
	}

	for _, ev := range s.broker.Replay(sessionID, since) {
		if !writeFrame(ev) {
			return
		}
	}

	heartbeat := time.NewTicker(stream.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if !writeFrame(ev) {
				return
			}
		case <-heartbeat.C:
			if !writeFrame(stream.Event{Type: "heartbeat", SessionID: sessionID, Timestamp: time.Now(), Payload: map[string]any{}}) {
				return
			}
		}
	}
}
