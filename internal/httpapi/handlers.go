package httpapi

import (
	"context"
	"errors"
	"net/http"

	"call-inbox/internal/apperr"
	"call-inbox/internal/audit"
	"call-inbox/internal/auth"
	"call-inbox/internal/claims"
	"call-inbox/internal/feed"
	"call-inbox/internal/mappings"
	"call-inbox/internal/metrics"
	"call-inbox/internal/notify"
	"call-inbox/internal/reporting"
	"call-inbox/internal/routing"
	"call-inbox/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	LoginLimiter *auth.LoginLimiter
	Cookies      auth.CookieOptions

	Claims    *claims.Service
	Mappings  *mappings.Service
	Routing   *routing.Resolver
	Reporting *reporting.Service

	Feed *feed.Publisher
	// FeedConns caps open feeds per credential. Nil or FeedMaxConns <= 0 disables it.
	FeedConns    feed.ConnLimiter
	FeedMaxConns int

	// Notifier serves POST /api/notify and is called synchronously.
	Notifier notify.Notifier
	Audit    *audit.Service
	Metrics  *metrics.Metrics

	// Health reports backing store readiness for /healthz. Nil means always ready.
	Health func(ctx context.Context) error
	// ExposeErrorDetail adds the internal error text to 500 bodies (local/dev only).
	ExposeErrorDetail bool
}

func (h *Handlers) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps err to its status and the {"error","message"} body.
func (h *Handlers) respondError(c *gin.Context, err error) {
	code := apperr.Code(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	body := gin.H{"error": code, "message": apperr.Message(err)}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", "error", err)
		body["message"] = "Internal server error"
		if h.ExposeErrorDetail {
			body["detail"] = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func invalidJSON(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Invalid JSON body"})
}

func (h *Handlers) audit(c *gin.Context, what string, err error) {
	if err != nil {
		logger.FromGin(c).Warn("audit append failed", "event", what, "error", err)
	}
}
