package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const minJWTSecretLen = 32

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string        `env:"APP_NAME" envDefault:"OTPless"`
	AppEnv          string        `env:"APP_ENV" envDefault:"development"`
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisURL        string        `env:"REDIS_URL"`
	ShutdownPeriod  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	WebhookDedupTTL time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"24h"`

	JWTSecret            string        `env:"JWT_SECRET"`
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL      time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	VerificationTokenTTL time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"10m"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	FrontendBaseURL string `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:3000"`
	MockMessaging   bool   `env:"MOCK_MESSAGING" envDefault:"false"`

	Twilio TwilioConfig `envPrefix:"TWILIO_"`
	// WebhookPublicURL is the externally visible URL Twilio signs inbound requests against.
	WebhookPublicURL string `env:"WEBHOOK_PUBLIC_URL"`
}

// TwilioConfig holds WhatsApp messaging credentials.
type TwilioConfig struct {
	AccountSID   string `env:"ACCOUNT_SID"`
	AuthToken    string `env:"AUTH_TOKEN"`
	WhatsAppFrom string `env:"WHATSAPP_FROM"`
	ContentSID   string `env:"CONTENT_SID"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.VerificationTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}

	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}

	if !c.MockMessaging {
		t := c.Twilio
		if t.AccountSID == "" || t.AuthToken == "" || t.WhatsAppFrom == "" || t.ContentSID == "" {
			return errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_WHATSAPP_FROM and TWILIO_CONTENT_SID must be set unless MOCK_MESSAGING=true")
		}
		if c.WebhookPublicURL == "" {
			return errors.New("WEBHOOK_PUBLIC_URL must be set unless MOCK_MESSAGING=true")
		}
	}
	return nil
}

// IsDev reports whether the process runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
