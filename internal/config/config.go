// Package config defines the global configuration structure for the plansync
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the plansync service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"plansync"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	Client   ClientConfig
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
	RequestTimeout  time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AuthConfig holds the bearer-token verification settings.
// AdminTokenHash is a bcrypt hash of the back-office admin token; user token
// verification is delegated to the auth collaborator via its verify endpoint.
type AuthConfig struct {
	AdminTokenHash  string        `envconfig:"ADMIN_TOKEN_HASH" validate:"required"`
	UserTokenTTL    time.Duration `envconfig:"USER_TOKEN_TTL" default:"24h"`
	VerifyCacheSize int           `envconfig:"AUTH_VERIFY_CACHE_SIZE" default:"1024"`
}

// MetricsConfig controls the optional CloudWatch drift metrics emitter.
// When Namespace is empty, drift metrics are disabled and only the local
// prometheus registry is served.
type MetricsConfig struct {
	Namespace string `envconfig:"CLOUDWATCH_NAMESPACE"`
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// ClientConfig configures the outbound PlanUsageClient used by the CLI and
// by any embedded consumers of the SDK.
type ClientConfig struct {
	BaseURL     string        `envconfig:"PLANSYNC_BASE_URL" default:"http://localhost:8080"`
	HTTPTimeout time.Duration `envconfig:"CLIENT_HTTP_TIMEOUT" default:"10s"`
	MaxRetries  int           `envconfig:"CLIENT_MAX_RETRIES" default:"3"`
}
