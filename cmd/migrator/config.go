package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds migration tool settings sourced from the environment.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationsPath is the directory holding *.up.sql / *.down.sql files.
	MigrationsPath string

	// MigrationTable tracks applied versions.
	MigrationTable string
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "./migrations"),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and resolves the migrations path.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	if c.MigrationsPath == "" {
		return fmt.Errorf("MIGRATIONS_PATH cannot be empty")
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	c.MigrationsPath = absPath

	if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", c.MigrationsPath)
	}

	return nil
}

// String returns a log-safe representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationsPath: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationsPath, c.MigrationTable)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// maskDatabaseURL hides the password portion of a connection string.
func maskDatabaseURL(url string) string {
	authStart := -1

	for i := 0; i < len(url)-1; i++ {
		if url[i] == '/' && url[i+1] == '/' {
			authStart = i + 2

			break
		}
	}

	if authStart == -1 {
		return url
	}

	atPos := -1

	for i := authStart; i < len(url); i++ {
		if url[i] == '@' {
			atPos = i
		}

		if url[i] == '/' || url[i] == '?' || url[i] == '#' {
			break
		}
	}

	if atPos == -1 {
		return url
	}

	colonPos := -1

	for i := authStart; i < atPos; i++ {
		if url[i] == ':' {
			colonPos = i

			break
		}
	}

	if colonPos == -1 || atPos-colonPos == 1 {
		return url
	}

	return url[:colonPos+1] + "***" + url[atPos:]
}
