package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultDSN        = "host=localhost user=postgres password=postgres dbname=registry port=5432 sslmode=disable"
	defaultCORSOrigin = "http://localhost:5173"
	minSecretLength   = 32
)

type Config struct {
	HTTPPort       string        `envconfig:"HTTP_PORT" default:"8080"`
	DatabaseDriver string        `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseDSN    string        `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=registry port=5432 sslmode=disable"`
	TokenSecret    string        `envconfig:"TOKEN_SECRET"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"0s"`
	CORSOrigins    string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"json"`
	BcryptCost     int           `envconfig:"BCRYPT_COST" default:"10"`
	// Length of generated temporary passwords (reset-password, users created without one).
	TempPasswordLength int    `envconfig:"TEMP_PASSWORD_LENGTH" default:"12"`
	MetricsEnabled     bool   `envconfig:"METRICS_ENABLED" default:"true"`
	SeedAdminPassword  string `envconfig:"SEED_ADMIN_PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// Missing .env files are fine; the environment alone is enough.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TokenSecret == "" {
		errs = append(errs, errors.New("TOKEN_SECRET is required"))
	} else if len(c.TokenSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("TOKEN_SECRET must be at least %d characters", minSecretLength))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported (postgres, sqlite)", c.DatabaseDriver))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not supported (json, console)", c.LogFormat))
	}
	if c.TokenTTL < 0 {
		errs = append(errs, errors.New("TOKEN_TTL cannot be negative"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.TempPasswordLength < 8 {
		errs = append(errs, errors.New("TEMP_PASSWORD_LENGTH must be at least 8"))
	}
	return errors.Join(errs...)
}

// Warnings lists settings that are acceptable for development but not for production.
func (c *Config) Warnings() []string {
	var w []string
	if c.DatabaseDSN == defaultDSN {
		w = append(w, "DATABASE_DSN is using the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == defaultCORSOrigin {
		w = append(w, "CORS_ALLOWED_ORIGINS is using the default value, set your own domain for production")
	}
	if c.DatabaseDriver == "sqlite" {
		w = append(w, "DATABASE_DRIVER=sqlite is meant for development only")
	}
	return w
}

// AllowedOrigins normalises the comma separated CORS_ALLOWED_ORIGINS value.
func (c *Config) AllowedOrigins() string {
	origins := strings.Split(c.CORSOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return strings.Join(origins, ",")
}
