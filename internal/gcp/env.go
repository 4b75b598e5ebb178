package gcp

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetDurationEnv reads a time.Duration such as "50s". Malformed values are logged and ignored.
func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("Ignoring invalid duration in environment", "key", key, "value", value)
		return fallback
	}
	return d
}

// GetInt64Env reads a positive integer. Malformed values are logged and ignored.
func GetInt64Env(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		slog.Warn("Ignoring invalid integer in environment", "key", key, "value", value)
		return fallback
	}
	return n
}
