// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in plan expiry comparisons.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads, populates, and validates the process configuration.
// It returns a fully validated Config or an error describing the first
// failure encountered. Callers should treat any error as fatal.
func LoadConfig() (*Config, error) {
	return loadConfig(".env")
}

// loadConfig is the testable core of LoadConfig, parameterized on the dotenv
// path so tests can point it at fixtures.
func loadConfig(dotenvPath string) (*Config, error) {
	// All timestamps in the system are UTC; a process-local timezone would
	// skew plan expiry checks.
	time.Local = time.UTC

	// Missing .env is the normal case in deployed environments.
	_ = godotenv.Load(dotenvPath)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
