package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for values that are almost never overridden outside tests.
const (
	DefaultSessionTTL = 10 * time.Minute
	DefaultBlockSize  = 10
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // Postgres; SQLite is used when empty
	SQLitePath  string
	RedisURL    string

	SessionTTL       time.Duration
	MessageBlockSize int
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SessionTTL:       DefaultSessionTTL,
		MessageBlockSize: DefaultBlockSize,
	}

	if raw := os.Getenv("SESSION_TTL_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.SessionTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if raw := os.Getenv("MESSAGE_BLOCK_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.MessageBlockSize = n
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
