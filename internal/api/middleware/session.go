package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/tablechat/internal/catalog"
)

const (
	// SessionHeader carries the browser session ID
	SessionHeader = "session-id"
	// TraceHeader carries a request correlation ID
	TraceHeader = "trace-id"

	sessionKey = "session_id"
)

// Session requires a session-id header and forwards it, together with the
// caller's bearer token, to upstream calls made with the request context.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session-id header is required"})
			c.Abort()
			return
		}

		token := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}

		ctx := catalog.WithCredentials(c.Request.Context(), catalog.Credentials{
			Token:     token,
			SessionID: sessionID,
		})
		if trace := c.GetHeader(TraceHeader); trace != "" {
			ctx = catalog.WithTraceID(ctx, trace)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(sessionKey, sessionID)

		c.Next()
	}
}

// SessionID returns the session ID stored by Session
func SessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
