// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"playjosh/config"
	"playjosh/logger"
	"playjosh/router"
	"playjosh/services"
	"playjosh/websocket"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("[main] invalid configuration")
		os.Exit(1)
	}

	logger.SetLogLevel(cfg.Env)
	if cfg.LogDir != "" {
		if err := logger.InitLogger(cfg.LogDir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.LogDir).Msg("[main] file logging disabled")
		}
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	displayAppname(cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("[main] server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("[main] server stopped")
}

// application is the wired process: the HTTP handler plus the background
// pieces that need starting and stopping with it.
type application struct {
	handler  http.Handler
	hub      *websocket.Hub
	recorder *services.CloudWatchRecorder
}

// newApplication builds every collaborator from cfg.
func newApplication(cfg *config.Config) (*application, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	var geocodeTransport http.RoundTripper
	if cfg.XRayEnabled {
		httpClient = xray.Client(httpClient)
		geocodeTransport = xray.RoundTripper(http.DefaultTransport)
	}

	auth, err := services.NewSupabaseAuth(services.SupabaseAuthConfig{
		URL:          cfg.Supabase.URL,
		AnonKey:      cfg.Supabase.AnonKey,
		JWTSecret:    cfg.Supabase.JWTSecret,
		CookieSecure: cfg.CookieSecure(),
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	app := &application{hub: websocket.NewHub()}

	var recorder services.DecisionRecorder = services.NoopRecorder{}
	if cfg.Metrics.Enabled {
		sess, err := session.NewSession()
		if err != nil {
			return nil, fmt.Errorf("aws session: %w", err)
		}
		app.recorder = services.NewCloudWatchRecorder(cloudwatch.New(sess), cfg.Metrics.Namespace)
		recorder = app.recorder
	}

	userAgent := fmt.Sprintf("%s/1.0 (%s)", cfg.AppName, cfg.ApplicationURL)
	engine, err := router.New(router.Dependencies{
		Config:   cfg,
		Resolver: auth,
		Auth:     auth,
		Geocoder: services.NewNominatimGeocoder(cfg.GeocodeURL, userAgent, geocodeTransport),
		Recorder: recorder,
		Hub:      app.hub,
	})
	if err != nil {
		return nil, err
	}

	app.handler = engine
	if cfg.XRayEnabled {
		app.handler = xray.Handler(xray.NewFixedSegmentNamer(cfg.AppName), engine)
	}
	return app, nil
}

// run serves until ctx is cancelled, then drains connections.
func run(ctx context.Context, cfg *config.Config) error {
	app, err := newApplication(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("env", cfg.Env).Msg("[main] listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if app.recorder != nil {
		g.Go(func() error {
			return app.recorder.Run(gctx, cfg.Metrics.FlushInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(server, app.hub)
	})
	return g.Wait()
}

func shutdown(server *http.Server, hub *websocket.Hub) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info().Msg("[main] shutting down")
	hub.Close()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
