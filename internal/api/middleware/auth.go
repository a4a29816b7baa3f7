package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
)

const userIDKey = "user_id"

// UserIdentity reads the user id the gateway injects. Requests without
// one never reach the domain handlers.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			HandleError(c, apperr.Validation("missing X-User-ID header"))
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id for the request.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
