package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// reprocessOutboxHandler resets a permanently-failed outbox event back
// to pending so the publisher picks it up on its next poll.
func (s *Server) reprocessOutboxHandler(c *gin.Context) {
	if err := s.outboxPub.Reprocess(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reprocessing"})
}
