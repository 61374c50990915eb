package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/pkg/jwt"
	"github.com/mocktalk/realtime/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
)

var ErrTokenRequired = errors.New("token is required")

// Auth returns a middleware that enforces bearer token authentication.
// EventSource cannot send headers, so the token may also arrive as ?token=.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := ValidateToken(extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// OptionalAuth sets the user ID if a valid token is present, but does not block the request.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := ValidateToken(extractToken(c)); err == nil {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	}
}

// ValidateToken verifies a raw token and returns the authenticated user id.
func ValidateToken(rawToken string) (int64, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return 0, ErrTokenRequired
	}
	claims, err := jwt.Parse(token)
	if err != nil {
		return 0, err
	}
	return claims.NumericUserID()
}

// CurrentUserID extracts the authenticated user ID from context; 0 when anonymous.
func CurrentUserID(c *gin.Context) int64 {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(int64)
	return id
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) > 0
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
