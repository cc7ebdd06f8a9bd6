package auth

import (
	"net/http"
	"strings"
	"time"

	"call-inbox/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "call_inbox_session"
	DeviceCookie  = "device_token"

	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	passwordHeader      = "X-Auth-Password"
)

// SourcesFrom collects every credential the request carries.
func SourcesFrom(c *gin.Context) Sources {
	var src Sources
	src.DeviceCookie, _ = c.Cookie(DeviceCookie)
	src.SessionCookie, _ = c.Cookie(SessionCookie)
	if raw := strings.TrimSpace(c.GetHeader(authorizationHeader)); strings.HasPrefix(raw, bearerPrefix) {
		src.Bearer = strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	src.Password = c.GetHeader(passwordHeader)
	return src
}

// RequireCredential lets the request through only with a valid credential and
// injects the identity into the request context.
func RequireCredential(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.Authenticate(c.Request.Context(), SourcesFrom(c))
		if err != nil {
			status := http.StatusUnauthorized
			if apperr.Code(err) == "internal" {
				status = http.StatusInternalServerError
				_ = c.Error(err)
			}
			c.AbortWithStatusJSON(status, gin.H{"error": apperr.Code(err), "message": "Unauthorized"})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		// The request log line reads the extension from the gin context.
		c.Set("extension", id.Extension)
		c.Next()
	}
}

// CookieOptions control how credentials are written back to browsers.
type CookieOptions struct {
	Secure bool
}

// SetCredentialCookie stores an issued credential under the cookie for its kind.
func SetCredentialCookie(c *gin.Context, opts CookieOptions, is Issued) {
	name := SessionCookie
	httpOnly := true
	if is.Kind == KindDevice {
		// Installed PWAs read the device token back to survive cookie loss.
		name, httpOnly = DeviceCookie, false
	}
	maxAge := int(time.Until(is.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, is.Token, maxAge, "/", "", opts.Secure, httpOnly)
}

// ClearCredentialCookies expires both credential cookies.
func ClearCredentialCookies(c *gin.Context, opts CookieOptions) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", opts.Secure, true)
	c.SetCookie(DeviceCookie, "", -1, "/", "", opts.Secure, false)
}
