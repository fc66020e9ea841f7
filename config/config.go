// Package config loads the application configuration from the environment.
// File: config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrConfiguration marks a startup-fatal configuration problem.
var ErrConfiguration = errors.New("configuration error")

// SupabaseConfig holds the hosted backend endpoint and keys.
type SupabaseConfig struct {
	URL     string `env:"URL,required,notEmpty"`
	AnonKey string `env:"ANON_KEY,required,notEmpty"`
	// JWTSecret enables local verification of access tokens. When empty the
	// user endpoint of the backend is asked instead.
	JWTSecret string `env:"JWT_SECRET"`
}

// MetricsConfig controls CloudWatch publishing of guard decisions.
type MetricsConfig struct {
	Enabled       bool          `env:"ENABLED"        envDefault:"false"`
	Namespace     string        `env:"NAMESPACE"      envDefault:"PlayJosh"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"1m"`
}

// devSessionSecret is the SESSION_SECRET default; only valid outside production.
const devSessionSecret = "playjosh-dev-session-secret"

// Config is the full application configuration.
type Config struct {
	AppName        string         `env:"APP_NAME"        envDefault:"PlayJosh"`
	Env            string         `env:"APP_ENV"         envDefault:"development"`
	Port           string         `env:"PORT"            envDefault:"8080"`
	ApplicationURL string         `env:"APPLICATION_URL" envDefault:"http://localhost:8080"`
	LogDir         string         `env:"LOG_DIR"`
	SessionTimeout time.Duration  `env:"SESSION_TIMEOUT" envDefault:"5s"`
	SessionSecret  string         `env:"SESSION_SECRET"  envDefault:"playjosh-dev-session-secret"`
	GeocodeURL     string         `env:"GEOCODE_URL"     envDefault:"https://nominatim.openstreetmap.org/reverse"`
	XRayEnabled    bool           `env:"XRAY_ENABLED"    envDefault:"false"`
	Supabase       SupabaseConfig `envPrefix:"SUPABASE_"`
	Metrics        MetricsConfig  `envPrefix:"METRICS_"`
}

// Load reads an optional .env file and parses the environment into a Config.
// Missing backend settings are reported as ErrConfiguration.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env file is normal outside local development
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Supabase.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: SUPABASE_URL %q is not an absolute URL", ErrConfiguration, c.Supabase.URL)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: SESSION_TIMEOUT must be positive", ErrConfiguration)
	}
	if c.IsProduction() && (c.SessionSecret == "" || c.SessionSecret == devSessionSecret) {
		return fmt.Errorf("%w: SESSION_SECRET must be set in production", ErrConfiguration)
	}
	c.Supabase.URL = strings.TrimRight(c.Supabase.URL, "/")
	return nil
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CookieSecure is the Secure attribute for every auth cookie.
func (c *Config) CookieSecure() bool {
	return c.IsProduction()
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
