package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codelab-platform/agent-control-plane/pkg/agentstore"
	"github.com/codelab-platform/agent-control-plane/pkg/approval"
	"github.com/codelab-platform/agent-control-plane/pkg/chatstore"
	"github.com/codelab-platform/agent-control-plane/pkg/outbox"
	"github.com/codelab-platform/agent-control-plane/pkg/planstore"
	"github.com/codelab-platform/agent-control-plane/pkg/router"
	"github.com/codelab-platform/agent-control-plane/pkg/stream"
	"github.com/codelab-platform/agent-control-plane/pkg/workerspace"
)

// Server is the HTTP API surface over the control plane's core
// components.
type Server struct {
	engine *gin.Engine
	http   *http.Server

	chatStore  *chatstore.Store
	outboxRepo *outbox.Repository
	outboxPub  *outbox.Publisher
	broker     *stream.Broker
	approvals  *approval.Manager
	spaces     *workerspace.Manager
	routerSvc  *router.Router
	agents     *agentstore.Store
	plans      *planstore.Store
}

// NewServer builds a Server and registers every route. All dependencies
// must be non-nil; NewServer does not check them, so a nil dependency
// fails on the first request that uses it.
func NewServer(
	chatStore *chatstore.Store,
	outboxRepo *outbox.Repository,
	outboxPub *outbox.Publisher,
	broker *stream.Broker,
	approvals *approval.Manager,
	spaces *workerspace.Manager,
	routerSvc *router.Router,
	agents *agentstore.Store,
	plans *planstore.Store,
) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:     engine,
		chatStore:  chatStore,
		outboxRepo: outboxRepo,
		outboxPub:  outboxPub,
		broker:     broker,
		approvals:  approvals,
		spaces:     spaces,
		routerSvc:  routerSvc,
		agents:     agents,
		plans:      plans,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/chat/sessions", s.createSessionHandler)
	v1.POST("/chat/:session/message", s.postMessageHandler)
	v1.POST("/chat/:session/plan", s.submitPlanHandler)
	v1.GET("/chat/:session/events", s.streamEventsHandler)

	v1.POST("/approvals/:id/confirm", s.confirmApprovalHandler)
	v1.POST("/approvals/:id/reject", s.rejectApprovalHandler)
	v1.GET("/approvals/:id", s.getApprovalHandler)

	v1.POST("/outbox/:id/reprocess", s.reprocessOutboxHandler)
	v1.POST("/tools/assess", s.assessToolHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Start runs the HTTP server on addr, blocking until it stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestTimeout is a per-request time budget. No route or middleware
// applies it; handlers run under the request's own context only.
const requestTimeout = 30 * time.Second
