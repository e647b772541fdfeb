/*
Copyright © 2025 ALESSIO TONIOLO

config.go resolves runtime configuration the way the teacher's
provider detection in pkg/remote/provider.go does: a .env file loaded
best-effort via godotenv, then environment variables, with CLI flags
given the final say in cmd/serve.go.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"ollamamq/internal/dispatcher"
)

// Config is the fully resolved runtime configuration for one dispatcher
// process.
type Config struct {
	Port             int
	OllamaURL        string
	BackendTimeout   time.Duration
	IdleThreshold    time.Duration
	DisableDashboard bool
	DisableHistory   bool
	LogPath          string
}

// Defaults returns the configuration used when nothing else overrides
// it: .env absent, no environment variables set, no flags passed.
func Defaults() Config {
	return Config{
		Port:           11435,
		OllamaURL:      "http://localhost:11434",
		BackendTimeout: dispatcher.DefaultBackendTimeout,
		IdleThreshold:  dispatcher.DefaultIdleThreshold,
		LogPath:        "ollamamq.log",
	}
}

// LoadEnvFile loads a .env file from the working directory if present.
// A missing .env is not an error and returns nil. If the file exists,
// godotenv.Load's error is returned to the caller (cmd/serve.go aborts
// on it).
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// FromEnv overlays environment variables onto a base Config. Flags
// applied afterward by the caller take final precedence.
func FromEnv(base Config) (Config, error) {
	cfg := base

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}
	if v := os.Getenv("TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid TIMEOUT %q: %w", v, err)
		}
		cfg.BackendTimeout = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv("IDLE_THRESHOLD"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid IDLE_THRESHOLD %q: %w", v, err)
		}
		cfg.IdleThreshold = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv("DISABLE_DASHBOARD"); v != "" {
		cfg.DisableDashboard = isTruthy(v)
	}
	if v := os.Getenv("DISABLE_HISTORY"); v != "" {
		cfg.DisableHistory = isTruthy(v)
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	return cfg, nil
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "yes", "on":
		return true
	default:
		return false
	}
}
