// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds serene configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"serene"`

	// Subjects
	DispatchSubject    string `envconfig:"DISPATCH_SUBJECT" default:"serene.dispatch.v1"`
	DispatchQueue      string `envconfig:"DISPATCH_QUEUE" default:"serene"`
	ChangeEventSubject string `envconfig:"CHANGE_EVENT_SUBJECT" default:"serene.changed"`

	// Resources limits the resource handler to these names and adds a
	// <DispatchSubject>.<resource> subscription for each. Empty serves all.
	Resources []string `envconfig:"RESOURCES"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Database (empty = in-memory store)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// API version negotiation
	APIVersions           []string `envconfig:"API_VERSIONS" default:"1.0.0"`
	DeprecatedAPIVersions []string `envconfig:"DEPRECATED_API_VERSIONS"`

	// Tracing (empty = off)
	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// ListenAddr returns HTTPAddr, or ":<HTTPPort>" when it is unset.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UsesDatabase reports whether documents are stored in Postgres.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// ValidateForServe checks required config when running the server.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.DispatchSubject == "" {
		return fmt.Errorf("%s - DISPATCH_SUBJECT is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if len(c.APIVersions) == 0 {
		return fmt.Errorf("%s - API_VERSIONS must list at least one version", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
