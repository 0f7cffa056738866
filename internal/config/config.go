// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration, populated from environment
// variables. Defaults target local development.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"ENV" default:"development"`

	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"notify"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"notify"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Redis (idempotency keys and rate limiting; optional)
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Email transport selection: "smtp" or "ses".
	EmailProvider string `envconfig:"EMAIL_PROVIDER" default:"smtp"`

	// SMTP relay
	SMTPHost     string        `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string        `envconfig:"SMTP_USERNAME" default:""`
	SMTPPassword string        `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string        `envconfig:"SMTP_FROM" default:"noreply@campushub.local"`
	SMTPFromName string        `envconfig:"SMTP_FROM_NAME" default:"CampusHub"`
	SMTPUseTLS   bool          `envconfig:"SMTP_USE_TLS" default:"true"`
	SMTPTimeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"10s"`

	// AWS SES (used when EMAIL_PROVIDER=ses)
	AWSRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`
	SESFromEmail string `envconfig:"SES_FROM_EMAIL" default:"noreply@campushub.local"`
	SESFromName  string `envconfig:"SES_FROM_NAME" default:"CampusHub"`

	// Web Push
	PushSubject         string        `envconfig:"PUSH_SUBJECT" default:"mailto:ops@campushub.local"`
	PushVAPIDPublicKey  string        `envconfig:"PUSH_VAPID_PUBLIC_KEY" default:""`
	PushVAPIDPrivateKey string        `envconfig:"PUSH_VAPID_PRIVATE_KEY" default:""`
	PushTTL             int           `envconfig:"PUSH_TTL" default:"86400"`
	PushTimeout         time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`

	// Delivery retry loop
	RetryMaxAttempts    int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryAttemptTimeout time.Duration `envconfig:"RETRY_ATTEMPT_TIMEOUT" default:"10s"`
	RetryBaseDelay      time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`

	// Per-recipient create rate limit
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
}

// Load populates Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.EmailProvider {
	case "smtp", "ses":
	default:
		return fmt.Errorf("invalid EMAIL_PROVIDER %q: must be smtp or ses", c.EmailProvider)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	return nil
}

// DatabaseURL builds the postgres connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedisAddr returns the host:port address for the redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
