// Package config loads the process configuration from the environment, with
// optional .env support for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	AppURL string `env:"APP_URL" envDefault:"http://localhost:8080"`

	DatabaseURL        string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime  time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`
	RunMigrations      bool          `env:"RUN_MIGRATIONS_ON_STARTUP" envDefault:"true"`

	JWTSecret          string   `env:"JWT_SECRET,required,notEmpty"`
	JWTPreviousSecrets []string `env:"JWT_PREVIOUS_SECRETS" envSeparator:","`

	// Compact expiry strings ("15m", "7d"); malformed values fall back to the
	// token package's 7-day fail-safe rather than failing startup.
	AccessTokenExpiry  string `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry string `env:"JWT_REFRESH_EXPIRY" envDefault:"7d"`

	SentryDSN string `env:"SENTRY_DSN"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	EmailEnabled  bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	EmailSMTPHost string `env:"EMAIL_SMTP_HOST"`
	EmailSMTPPort int    `env:"EMAIL_SMTP_PORT" envDefault:"587"`
	EmailUsername string `env:"EMAIL_USERNAME"`
	EmailPassword string `env:"EMAIL_PASSWORD"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"no-reply@localhost"`

	LoginRateLimitMax    int           `env:"LOGIN_RATE_LIMIT_MAX" envDefault:"10"`
	LoginRateLimitWindow time.Duration `env:"LOGIN_RATE_LIMIT_WINDOW" envDefault:"1m"`

	CronSecret              string        `env:"CRON_SECRET"`
	RefreshTokenRetention   time.Duration `env:"AUTH_REFRESH_TOKEN_RETENTION" envDefault:"336h"`
	CleanupBatchSize        int           `env:"AUTH_CLEANUP_BATCH_SIZE" envDefault:"500"`

	// ExposeDebugTokens echoes raw verification/reset tokens in API responses.
	// Development convenience only; must never be set in production.
	ExposeDebugTokens bool `env:"EXPOSE_DEBUG_TOKENS" envDefault:"false"`
}

// Load reads the environment into a Config. When loadDotEnv is set, a .env
// file is merged in first (missing file is not an error).
func Load(loadDotEnv bool) (*Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the process runs with a production profile.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
