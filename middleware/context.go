// Package middleware provides request filters and security checks for the application.
// File: middleware/context.go
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"playjosh/models"
)

type contextKey string

// SessionKey is the gin context key holding the resolved models.Session.
const SessionKey = "playjosh.session"

const sessionContextKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFrom returns the session the guard resolved for this request.
func SessionFrom(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(models.Session)
	return s, ok
}

// CurrentSession reads the session from a gin context, anonymous if absent.
func CurrentSession(c *gin.Context) models.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(models.Session); ok {
			return s
		}
	}
	if s, ok := SessionFrom(c.Request.Context()); ok {
		return s
	}
	return models.Anonymous()
}

func setSession(c *gin.Context, s models.Session) {
	c.Set(SessionKey, s)
	c.Request = c.Request.WithContext(WithSession(c.Request.Context(), s))
}
