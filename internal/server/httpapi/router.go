package httpapi

import (
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/gin-gonic/gin"
)

// NewRouter wires all routes. ClientIP is taken from the connection only;
// forwarding headers are not trusted.
func NewRouter(h *Handler, corsOrigins []string, logger logging.Logger) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)

	r.Use(gin.Recovery(), RequestLogger(logger.With("module", "http_access")), CORS(corsOrigins))

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/salt", h.Salt)
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", h.BearerAuth(), h.Logout)
	authGroup.GET("/heartbeat", h.BearerAuth(), h.Heartbeat)

	sessions := api.Group("/sessions", h.BearerAuth())
	sessions.GET("", h.ListSessions)
	sessions.DELETE("/:id", h.RevokeSession)

	admin := api.Group("/admin", h.AdminAuth())
	admin.POST("/cleanup", h.Cleanup)

	return r
}
