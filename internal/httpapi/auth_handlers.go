package httpapi

import (
	"net/http"
	"strings"

	"call-inbox/internal/apperr"
	"call-inbox/internal/auth"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Password    string `json:"password"`
	Extension   string `json:"extension"`
	Device      bool   `json:"device"`
	AccessToken string `json:"access_token"`
}

// Login exchanges the shared password for a session (or device) credential.
// The access token may come in the body or as ?token=.
func (h *Handlers) Login(c *gin.Context) {
	if !h.LoginLimiter.Allow(c.ClientIP()) {
		h.Metrics.RecordLogin("rate_limited")
		h.respondError(c, apperr.RateLimited("Too many login attempts, try again later"))
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	if req.AccessToken == "" {
		req.AccessToken = c.Query("token")
	}

	ctx := c.Request.Context()
	issued, err := h.Auth.Login(ctx, auth.LoginRequest{
		Password:    req.Password,
		AccessToken: req.AccessToken,
		Extension:   req.Extension,
		Device:      req.Device,
	})
	if err != nil {
		h.Metrics.RecordLogin("failure")
		if h.Audit != nil {
			h.audit(c, "login_failed", h.Audit.LogLogin(ctx, strings.TrimSpace(req.Extension), "", err))
		}
		h.respondError(c, err)
		return
	}

	h.Metrics.RecordLogin("success")
	if h.Audit != nil {
		h.audit(c, "login", h.Audit.LogLogin(ctx, issued.Extension, string(issued.Kind), nil))
	}
	auth.SetCredentialCookie(c, h.Cookies, issued)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      issued.Token,
		"kind":       issued.Kind,
		"extension":  issued.Extension,
		"expires_at": issued.ExpiresAt,
	})
}

// ValidateLoginToken lets the login page check its access token up front.
func (h *Handlers) ValidateLoginToken(c *gin.Context) {
	token := c.Query("token")
	if token == "" || !h.Auth.ValidateAccessToken(token) {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type restoreRequest struct {
	DeviceToken string `json:"device_token"`
	// Accepted for clients that still send the camelCase name.
	DeviceTokenCamel string `json:"deviceToken"`
}

// RestoreSession turns a device token the client kept in local storage back
// into a device cookie.
func (h *Handlers) RestoreSession(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	raw := req.DeviceToken
	if raw == "" {
		raw = req.DeviceTokenCamel
	}

	id, err := h.Auth.Restore(c.Request.Context(), raw)
	if err != nil {
		h.respondError(c, err)
		return
	}
	auth.SetCredentialCookie(c, h.Cookies, auth.Issued{
		Token:     raw,
		Kind:      id.Kind,
		Extension: id.Extension,
		ExpiresAt: id.ExpiresAt,
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "extension": id.Extension})
}

func (h *Handlers) Session(c *gin.Context) {
	id, _ := auth.IdentityFrom(c.Request.Context())
	c.JSON(http.StatusOK, id)
}

func (h *Handlers) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := auth.IdentityFrom(ctx)
	if err := h.Auth.Logout(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}
	if h.Audit != nil {
		h.audit(c, "logout", h.Audit.LogLogout(ctx, id.Extension))
	}
	auth.ClearCredentialCookies(c, h.Cookies)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
