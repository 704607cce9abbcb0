package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

func (s *Server) getApprovalHandler(c *gin.Context) {
	req, err := s.approvals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApprovalResponse(req))
}

func (s *Server) confirmApprovalHandler(c *gin.Context) {
	req, err := s.approvals.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Kind == models.ApprovalKindPlan {
		s.confirmApprovalPlan(c.Request.Context(), req)
	}
	c.JSON(http.StatusOK, toApprovalResponse(req))
}

func (s *Server) rejectApprovalHandler(c *gin.Context) {
	// Body is entirely optional (Reason has no binding tag), so a
	// missing or empty body is not an error.
	var body rejectApprovalRequest
	_ = c.ShouldBindJSON(&body)

	req, err := s.approvals.Reject(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApprovalResponse(req))
}
