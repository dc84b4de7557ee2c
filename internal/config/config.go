// Package config loads the pipeline configuration from defaults, an optional
// config.yaml, a .env file and environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/validation"
)

// LoadEnv loads environment variables from a .env file in the current or
// parent directory, if one exists. Variables already set are kept.
func LoadEnv(logger logging.Logger) {
	logger = logging.Component(logger, "config")

	envFile := ".env"
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		envFile = filepath.Join("..", ".env")
		if _, err := os.Stat(envFile); os.IsNotExist(err) {
			logger.Debug("No .env file found, using environment variables")
			return
		}
	}

	if info, err := os.Stat(envFile); err == nil {
		if err := validation.IsValidFilePermissions(info.Mode().Perm()); err != nil {
			logger.Warn("The .env file may hold secrets", logging.Field{Key: logging.FieldReason, Value: err.Error()})
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.WithError(err).Warn("Error loading .env file")
		return
	}
	logger.Debug("Loaded environment variables", logging.Field{Key: "file", Value: envFile})
}

// GetEnv retrieves an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}

// NewLogger builds the application logger from the log section.
func NewLogger(cfg *Config) logging.Logger {
	return logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)
}
