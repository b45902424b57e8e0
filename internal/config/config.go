package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the lpms CLI.
type Config struct {
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string
	Debug         bool
	LogJSON       bool

	// AuditAutoRepair lets the auditor clear orphaned represents pointers it finds.
	AuditAutoRepair  bool
	AuditConcurrency int
	AuditConsumer    string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory, when present, fills variables that
// are not already set.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "auditor"
	}

	concurrency, err := getEnvInt("LPMS_AUDIT_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("LPMS_AUDIT_CONCURRENCY must be at least 1, got %d", concurrency)
	}

	cfg := &Config{
		DatabaseURL:      getEnv("LPMS_DATABASE_URL", "postgres://localhost:5432/lpms?sslmode=disable"),
		RedisURL:         getEnv("LPMS_REDIS_URL", "redis://localhost:6379/0"),
		MigrationsDir:    getEnv("LPMS_MIGRATIONS_DIR", "migrations"),
		Debug:            getEnvBool("LPMS_DEBUG", false),
		LogJSON:          getEnvBool("LPMS_LOG_JSON", false),
		AuditAutoRepair:  getEnvBool("LPMS_AUDIT_AUTO_REPAIR", false),
		AuditConcurrency: concurrency,
		AuditConsumer:    getEnv("LPMS_AUDIT_CONSUMER", hostname),
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
