// Package config provides configuration for the companion orchestrator.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Auth provider (GoTrue-style)
	AuthURL     string
	AuthAnonKey string
	RealtimeURL string

	// Remote reply service
	ReplyServiceURL string

	// Storage collaborator (PostgREST-style); empty means local SQLite
	StorageURL    string
	StorageAPIKey string

	// Where the last-identity hint file lives
	HintPath string

	// Timeouts
	ReplyTimeout time.Duration
	TTSTimeout   time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	godotenv.Load()

	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:     getEnv("DATABASE_URL", "file:companion.db?cache=shared&mode=rwc"),
		AuthURL:         getEnv("AUTH_URL", ""),
		AuthAnonKey:     getEnv("AUTH_ANON_KEY", ""),
		RealtimeURL:     getEnv("REALTIME_URL", ""),
		ReplyServiceURL: getEnv("REPLY_SERVICE_URL", "https://amg2-production.up.railway.app"),
		StorageURL:      getEnv("STORAGE_URL", ""),
		StorageAPIKey:   getEnv("STORAGE_API_KEY", ""),
		HintPath:        getEnv("HINT_PATH", "last_identity.json"),
		ReplyTimeout:    time.Duration(getEnvInt("REPLY_TIMEOUT_MS", 60000)) * time.Millisecond,
		TTSTimeout:      time.Duration(getEnvInt("TTS_TIMEOUT_MS", 30000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
