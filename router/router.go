// Package router assembles the gin engine: ambient middleware, the request
// access guard and every application route.
// file: router/router.go
package router

import (
	"errors"
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"playjosh/config"
	"playjosh/controllers"
	"playjosh/middleware"
	"playjosh/services"
	"playjosh/websocket"
)

// Dependencies are the collaborators the routes are wired to.
type Dependencies struct {
	Config   *config.Config
	Resolver services.SessionResolver
	Auth     services.AuthClient
	Geocoder services.Geocoder
	Recorder services.DecisionRecorder
	Hub      *websocket.Hub
	// Encoder overrides the QR code encoder; nil uses go-qrcode.
	Encoder services.QRCodeEncoder
}

// New builds the application engine.
func New(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil || deps.Resolver == nil || deps.Auth == nil {
		return nil, errors.New("router: config, session resolver and auth client are required")
	}
	cfg := deps.Config

	guard, err := middleware.NewGuard(
		middleware.DefaultRoutes(),
		deps.Resolver,
		middleware.WithRecorder(deps.Recorder),
		middleware.WithSessionTimeout(cfg.SessionTimeout),
	)
	if err != nil {
		return nil, err
	}
	draftStore, err := controllers.NewDraftStore(cfg.SessionSecret, cfg.CookieSecure())
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestContext(),
		middleware.RequestLogger(),
		middleware.SecurityHeaders(),
		guard.Handler(),
		sessions.Sessions(controllers.DraftSessionName, draftStore),
	)

	auth := controllers.NewAuthController(deps.Auth, cfg.ApplicationURL)
	onboarding := controllers.NewOnboardingController(deps.Auth)
	pages := controllers.NewPageController(cfg.ApplicationURL, deps.Encoder)

	r.GET("/health", controllers.Health)
	r.GET("/", pages.Page("landing"))

	// auth pages
	r.GET("/login", pages.Page("login"))
	r.POST("/login", auth.Login)
	r.GET("/signup", pages.Page("signup"))
	r.POST("/signup", auth.SignUp)
	r.GET("/verify-email", pages.Page("verify-email"))
	r.GET("/forgot-password", pages.Page("forgot-password"))
	r.POST("/forgot-password", auth.ForgotPassword)
	r.GET("/reset-password", pages.Page("reset-password"))
	r.POST("/reset-password", auth.ResetPassword)
	r.GET("/auth/callback", auth.Callback)
	r.POST("/auth/logout", auth.Logout)

	// onboarding
	r.GET("/onboarding", onboarding.Resume)
	r.POST("/onboarding/skip", onboarding.Skip)
	r.GET("/onboarding/:step", onboarding.ShowStep)
	r.POST("/onboarding/:step", onboarding.SubmitStep)

	// application
	r.GET("/Home", pages.Page("home"))
	r.GET("/feed", pages.Page("feed"))
	r.GET("/profile", pages.Page("profile"))
	r.GET("/profile/qrcode", pages.ProfileQRCode)
	r.GET("/discover", pages.Page("discover"))
	r.GET("/events", pages.Page("events"))
	r.GET("/events/:id", pages.Page("event"))
	r.GET("/messages", pages.Page("messages"))
	r.GET("/coach/:id", pages.Page("coach"))

	if deps.Hub != nil {
		r.GET("/messages/live", websocket.NewHandler(deps.Hub, cfg.ApplicationURL).ServeLive)
	}
	if deps.Geocoder != nil {
		r.GET("/api/geocode", controllers.NewGeocodeController(deps.Geocoder).Reverse)
	}

	return r, nil
}
