package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"runtime"
	"strings"

	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/alexjbarnes/slack-signin/internal/slack"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// sessionSecretMinLen is the minimum SESSION_SECRET length accepted
	// in production.
	sessionSecretMinLen = 32

	// devSecretBytes is the size of the per-process secret generated
	// when SESSION_SECRET is unset outside production.
	devSecretBytes = 32

	callbackPath = "/api/auth/callback"
)

// Config holds all environment-based configuration for slack-signin.
type Config struct {
	// Slack app credentials. Missing values are not a startup error:
	// callbacks fail with config_error until they are provided.
	ClientID     string `env:"SLACK_CLIENT_ID"`
	ClientSecret string `env:"SLACK_CLIENT_SECRET"`
	RedirectURI  string `env:"SLACK_REDIRECT_URI"`

	// Which Slack sign-in API to talk to: legacy, oidc or v2.
	Variant    string   `env:"SLACK_API_VARIANT" envDefault:"v2"`
	APIBaseURL string   `env:"SLACK_API_BASE_URL" envDefault:"https://slack.com"`
	Scopes     []string `env:"SLACK_SCOPES" envSeparator:","`

	// Key material for sealing session cookies.
	SessionSecret string `env:"SESSION_SECRET"`

	// Compare the callback state against the state cookie set at login.
	VerifyState bool `env:"VERIFY_STATE" envDefault:"true"`

	// Environment controls log format and cookie Secure flag.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":3000"`
	PublicURL   string `env:"PUBLIC_URL"`
	LandingPath string `env:"LANDING_PATH" envDefault:"/"`
	HomePath    string `env:"HOME_PATH" envDefault:"/home"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the client secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Variant = strings.ToLower(strings.TrimSpace(cfg.Variant))
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.RedirectURI == "" && cfg.PublicURL != "" {
		cfg.RedirectURI = cfg.PublicURL + callbackPath
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Outside production an unset secret is replaced with a random one.
	// Sessions then do not survive a restart, which is fine locally.
	if cfg.SessionSecret == "" {
		b := make([]byte, devSecretBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}

		cfg.SessionSecret = hex.EncodeToString(b)

		log.Printf("WARNING: SESSION_SECRET not set; using a random per-process secret")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := slack.ParseVariant(c.Variant); err != nil {
		return fmt.Errorf("SLACK_API_VARIANT: %w", err)
	}

	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("SLACK_API_BASE_URL is not a valid URL: %w", err)
	}

	if c.IsProduction() {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in production")
		}

		if len(c.SessionSecret) < sessionSecretMinLen {
			return fmt.Errorf("SESSION_SECRET too short (minimum %d characters)", sessionSecretMinLen)
		}
	}

	if !strings.HasPrefix(c.LandingPath, "/") || !strings.HasPrefix(c.HomePath, "/") {
		return fmt.Errorf("LANDING_PATH and HOME_PATH must be absolute paths")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether the service runs locally over plain
// HTTP. Case is ignored.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "development")
}

// Credentials returns the Slack app credentials as one value. The
// exchange path checks them per request rather than at startup.
func (c *Config) Credentials() models.ProviderCredentials {
	return models.ProviderCredentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
	}
}
