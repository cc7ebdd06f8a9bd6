package httpapi

import (
	"log/slog"

	"call-inbox/internal/audit"
	"call-inbox/internal/auth"
	"call-inbox/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	routeStream    = "/api/calls/stream"
	routeWebSocket = "/api/calls/ws"
)

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(h *Handlers, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))
	r.Use(h.Metrics.Middleware(routeStream, routeWebSocket))
	r.Use(clientIP())

	Register(r, h)
	return r
}

// Register wires HTTP routes to handlers.
// Keep this free of business logic; handlers delegate to internal modules.
func Register(r *gin.Engine, h *Handlers) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// public
	api.POST("/login", h.Login)
	api.GET("/login/validate", h.ValidateLoginToken)
	api.POST("/session/restore", h.RestoreSession)

	protected := api.Group("")
	protected.Use(auth.RequireCredential(h.Auth), actor())
	{
		protected.GET("/session", h.Session)
		protected.POST("/logout", h.Logout)

		calls := protected.Group("/calls")
		calls.GET("", h.ListCalls)
		calls.GET("/summary", h.CallsSummary)
		calls.GET("/stream", h.StreamCalls)
		calls.GET("/ws", h.CallsWebSocket)
		calls.GET("/:phone_norm", h.GetCall)
		calls.PATCH("/:phone_norm", h.PatchCall)

		m := protected.Group("/mappings")
		m.GET("", h.ListMappings)
		m.POST("", h.CreateMapping)
		m.PATCH("/:phone_number", h.UpdateMapping)
		m.DELETE("/:phone_number", h.DeleteMapping)

		protected.GET("/routing/:phone", h.ResolveRoute)
		protected.POST("/notify", h.Notify)
	}
}

// clientIP resolves the client IP once and attaches it to the request
// context for audit records.
func clientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// actor attaches the authenticated extension for audit records.
func actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ext := auth.Extension(c.Request.Context()); ext != "" {
			c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), ext))
		}
		c.Next()
	}
}
