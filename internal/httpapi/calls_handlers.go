package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/auth"
	"call-inbox/internal/claims"
	"call-inbox/internal/feed"
	"call-inbox/internal/notify"
	"call-inbox/internal/reporting"
	"call-inbox/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ListCalls serves the inbox. With no query parameters it returns missed and
// claimed calls that have not expired, newest first.
func (h *Handlers) ListCalls(c *gin.Context) {
	f, err := listFilterFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	rows, err := h.Claims.ListActive(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func listFilterFrom(c *gin.Context) (claims.ListFilter, error) {
	f := claims.ListFilter{
		Search:    c.Query("search"),
		Status:    claims.Status(strings.TrimSpace(c.Query("status"))),
		Extension: strings.TrimSpace(c.Query("extension")),
	}
	var err error
	if f.IncludeExpired, err = queryBool(c, "includeExpired"); err != nil {
		return f, err
	}
	if f.IncludeHandled, err = queryBool(c, "includeHandled"); err != nil {
		return f, err
	}
	if f.UpdatedSince, err = queryTime(c, "since"); err != nil {
		return f, err
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, apperr.Invalid("limit must be an integer")
		}
		f.Limit = n
	}
	return f, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Invalid("%s must be true or false", key)
	}
	return b, nil
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperr.Invalid("%s must be an RFC 3339 timestamp", key)
	}
	return t, nil
}

func (h *Handlers) CallsSummary(c *gin.Context) {
	since, err := queryTime(c, "since")
	if err != nil {
		h.respondError(c, err)
		return
	}
	out, err := h.Reporting.ClaimsSummary(c.Request.Context(), reporting.SummaryRequest{Since: since})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) GetCall(c *gin.Context) {
	call, err := h.Claims.Get(c.Request.Context(), c.Param("phone_norm"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

type transitionRequest struct {
	Status    string `json:"status"`
	Extension string `json:"extension"`
}

// PatchCall claims or handles a call on behalf of the extension in the body.
func (h *Handlers) PatchCall(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	call, err := h.Claims.Transition(c.Request.Context(), c.Param("phone_norm"), claims.Status(req.Status), req.Extension)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// acquireFeedSlot enforces the per-credential feed cap. A limiter failure
// lets the connection through.
func (h *Handlers) acquireFeedSlot(c *gin.Context) (func(), bool) {
	noop := func() {}
	if h.FeedConns == nil || h.FeedMaxConns <= 0 {
		return noop, true
	}
	id, _ := auth.IdentityFrom(c.Request.Context())
	release, ok, err := h.FeedConns.Acquire(c.Request.Context(), id.Key())
	if err != nil {
		logger.FromGin(c).Warn("feed connection cap unavailable", "error", err)
		return noop, true
	}
	if !ok {
		h.respondError(c, apperr.RateLimited("Too many open feeds for this credential"))
		return noop, false
	}
	return release, true
}

// StreamCalls serves the change feed as Server-Sent Events.
func (h *Handlers) StreamCalls(c *gin.Context) {
	release, ok := h.acquireFeedSlot(c)
	if !ok {
		return
	}
	defer release()

	sink, err := feed.NewSSESink(c.Writer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Feed.Run(c.Request.Context(), sink); err != nil {
		logger.FromGin(c).Debug("feed stream closed", "error", err)
	}
}

// CallsWebSocket serves the same feed over a WebSocket.
func (h *Handlers) CallsWebSocket(c *gin.Context) {
	release, ok := h.acquireFeedSlot(c)
	if !ok {
		return
	}
	defer release()

	if err := h.Feed.ServeWebSocket(c.Writer, c.Request); err != nil {
		logger.FromGin(c).Debug("feed websocket closed", "error", err)
	}
}

type notifyRequest struct {
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

// Notify lets the PBX side push a notification for a fresh missed call.
func (h *Handlers) Notify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	norm := h.Claims.Normalize(req.Phone)
	if norm == "" {
		h.respondError(c, apperr.Invalid("phone is required"))
		return
	}
	status := claims.Status(req.Status)
	if status == "" {
		status = claims.StatusMissed
	}
	switch status {
	case claims.StatusMissed, claims.StatusClaimed, claims.StatusHandled:
	default:
		h.respondError(c, apperr.Invalid("status must be one of: missed, claimed, handled"))
		return
	}
	if h.Notifier == nil {
		h.respondError(c, errors.New("notifier not configured"))
		return
	}

	err := h.Notifier.SendCallStatusNotification(c.Request.Context(), notify.Notification{
		Phone:     norm,
		Status:    string(status),
		Extension: auth.Extension(c.Request.Context()),
	})
	h.Metrics.RecordNotification(string(status), err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification sent", "phone": norm})
}
