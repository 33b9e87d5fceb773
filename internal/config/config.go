package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the application
type Config struct {
	// Server
	Port  int
	Debug bool

	// Hierarchy store (SQLite)
	SQLitePath string

	// Engine state store (JSON)
	DataDir string

	// Event archive (Postgres, optional; empty disables archiving)
	ArchiveURL string

	// RabbitMQ (optional; empty disables queue ingestion)
	RabbitMQURL string

	// Assistant
	AIProvider string // claude, scripted
	AIAPIKey   string
	AIModel    string

	// Monitor
	CheckIntervalSeconds int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnvInt("PORT", 7433),
		Debug:                getEnvBool("DEBUG", false),
		SQLitePath:           getEnv("QUESTPULSE_DB", "questpulse.db"),
		DataDir:              getEnv("QUESTPULSE_DATA_DIR", "data"),
		ArchiveURL:           getEnv("ARCHIVE_URL", ""),
		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
		AIProvider:           getEnv("AI_PROVIDER", "scripted"),
		AIAPIKey:             getEnv("AI_API_KEY", ""),
		AIModel:              getEnv("AI_MODEL", "claude-sonnet-4-20250514"),
		CheckIntervalSeconds: getEnvInt("CHECK_INTERVAL_SECONDS", 300),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
