package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

func principal(c *gin.Context) *services.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*services.Principal)
	return p
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	scheme, token, ok := strings.Cut(c.GetHeader(common.AuthorizationHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// BearerAuth resolves the bearer token to a live session and stores the
// principal in the gin context.
func (h *Handler) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			fail(c, http.StatusUnauthorized, CodeUnauthorized, "missing or malformed authorization header")
			return
		}

		p, err := h.sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.writeError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// AdminAuth guards admin endpoints with the admin password header and the
// per-admin-IP limiter. Without a configured password the endpoints do not
// exist.
func (h *Handler) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminPassword == "" {
			fail(c, http.StatusNotFound, CodeNotFound, "not found")
			return
		}

		ctx := c.Request.Context()
		ip := c.ClientIP()

		d, err := h.limiter.CheckAdminRateLimit(ctx, ip)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if !d.Allowed {
			failRateLimited(c, d.Reason, d.WaitSeconds)
			return
		}

		given := c.GetHeader(common.AdminPasswordHeaderName)
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.adminPassword)) != 1 {
			if err := h.limiter.RecordAdminFailure(ctx, ip); err != nil {
				h.writeError(c, err)
				return
			}
			h.logger.Warn(ctx, "admin authentication failed", "ip", ip)
			fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}

		if err := h.limiter.RecordAdminSuccess(ctx, ip); err != nil {
			h.writeError(c, err)
			return
		}
		c.Next()
	}
}

// CORS answers preflights and sets CORS headers for allowed origins only.
func CORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, ok := allowed[origin]
		if origin != "" && ok {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+common.AdminPasswordHeaderName)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			if ok {
				c.AbortWithStatus(http.StatusNoContent)
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per request. Query strings and bodies are left
// out since they may carry credentials.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}
