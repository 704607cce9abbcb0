// Package api exposes the control plane over HTTP: chat sessions and
// messages, approval confirm/reject, the NDJSON event stream, and the
// small set of operator/diagnostic endpoints layered on top of the
// core components. It stays thin by design — every real decision is
// made by the package it delegates to.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codelab-platform/agent-control-plane/pkg/apperr"
)

// respondError maps a domain error onto an HTTP status and JSON body,
// following the same kind-tagged taxonomy every core component reports
// through apperr.
func respondError(c *gin.Context, err error) {
	if apperr.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for this resource"})
	case errors.Is(err, apperr.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "approval already resolved"})
	case errors.Is(err, apperr.ErrGone):
		c.JSON(http.StatusGone, gin.H{"error": "resource no longer available"})
	case errors.Is(err, apperr.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent queue is at capacity"})
	case errors.Is(err, apperr.ErrUpstreamTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream call timed out"})
	case errors.Is(err, apperr.ErrUpstreamFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream call failed"})
	default:
		slog.Error("unexpected api error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
