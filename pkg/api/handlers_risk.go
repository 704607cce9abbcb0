package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codelab-platform/agent-control-plane/pkg/risk"
)

// assessToolHandler is a read-only pre-flight check a client can call
// before invoking a tool, to decide whether to warn the user it will
// require approval.
func (s *Server) assessToolHandler(c *gin.Context) {
	var req assessToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, risk.Assess(req.ToolName, req.Params))
}
