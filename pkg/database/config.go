// Copyright 2025 Certen Protocol

package database

import (
	"os"
	"strconv"
)

// Config holds the connection-pool settings NewClient needs. It is
// intentionally scoped to the database concern alone rather than pulled
// from a monolithic service config, so pkg/database stays usable by any
// caller (the snapshot store's Postgres variant, or a future one) without
// dragging in unrelated configuration surface.
type Config struct {
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
}

// ConfigFromEnv builds a Config from DATABASE_* environment variables,
// falling back to the same defaults the validator service used.
func ConfigFromEnv() Config {
	return Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
	}
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
