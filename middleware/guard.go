// Package middleware provides request filters and security checks for the application.
// File: middleware/guard.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"playjosh/logger"
	"playjosh/models"
	"playjosh/services"
)

// DefaultSessionTimeout bounds session resolution when no timeout is configured.
const DefaultSessionTimeout = 5 * time.Second

// -------------- request access guard --------------

// Guard decides, for every non-bypassed request, whether it proceeds or is
// redirected, based on the visitor's session and onboarding state.
type Guard struct {
	routes   *RouteTable
	resolver services.SessionResolver
	recorder services.DecisionRecorder
	timeout  time.Duration
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithRecorder sends each decision to r.
func WithRecorder(r services.DecisionRecorder) GuardOption {
	return func(g *Guard) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithSessionTimeout bounds each session resolution.
func WithSessionTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGuard builds a guard over routes. It refuses a route table whose
// redirects could bounce a visitor between two guarded pages.
func NewGuard(routes *RouteTable, resolver services.SessionResolver, opts ...GuardOption) (*Guard, error) {
	if routes == nil {
		routes = DefaultRoutes()
	}
	if resolver == nil {
		return nil, fmt.Errorf("guard: session resolver is required")
	}
	if err := routes.ValidateLoopFree(); err != nil {
		return nil, fmt.Errorf("guard: route table is not loop free: %w", err)
	}

	g := &Guard{
		routes:   routes,
		resolver: resolver,
		recorder: services.NoopRecorder{},
		timeout:  DefaultSessionTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Handler returns the gin middleware.
// How it works:
// - Bypassed paths pass through without touching the session.
// - Otherwise the session is resolved and any refreshed cookies are written
// to the response, whatever the decision.
// - Redirect decisions answer 302 and abort the chain.
//
// Usage:
//
//	router.Use(guard.Handler())
func (g *Guard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := NormalizePath(c.Request.URL.Path)
		category := g.routes.Classify(p)
		if category == CategoryBypass {
			c.Next()
			return
		}

		session := g.resolve(c)
		setSession(c, session)

		decision := Decide(session, category, p)
		g.recorder.RecordDecision(string(category), decision.Outcome())

		logger.Ctx(c.Request.Context()).Debug().
			Str("path", p).
			Str("category", string(category)).
			Bool("authenticated", session.Authenticated).
			Bool("onboarded", session.OnboardingDone()).
			Str("decision", decision.String()).
			Msg("[Guard] access decision")

		if decision.Redirect {
			c.Redirect(http.StatusFound, decision.Target)
			c.Abort()
			return
		}
		c.Next()
	}
}

// resolve never fails: errors and panics in the resolver degrade to an
// anonymous session. Cookie mutations are applied in every case.
func (g *Guard) resolve(c *gin.Context) (session models.Session) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), g.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Ctx(c.Request.Context()).Error().
				Interface("panic", r).
				Msg("[Guard] session resolution panicked, treating visitor as unauthenticated")
			session = models.Anonymous()
		}
	}()

	session, mutations, err := g.resolver.ResolveSession(ctx, c.Request.Cookies())
	for _, m := range mutations {
		http.SetCookie(c.Writer, m)
	}
	if err != nil {
		logger.Ctx(c.Request.Context()).Warn().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("[Guard] session resolution failed, treating visitor as unauthenticated")
		return models.Anonymous()
	}
	return session
}
