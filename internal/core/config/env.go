package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: DAGGER_[SECTION]_[KEY] (e.g., DAGGER_DB_DSN).
func ApplyEnvOverrides(cfg *Config) {
	// Database
	setEnvString(&cfg.DB.Driver, "DAGGER_DB_DRIVER")
	setEnvString(&cfg.DB.Path, "DAGGER_DB_PATH")
	setEnvSecret(&cfg.DB.DSN, "DAGGER_DB_DSN")
	setEnvDuration(&cfg.DB.BusyTimeout, "DAGGER_DB_BUSY_TIMEOUT")
	setEnvInt(&cfg.DB.MaxOpenConns, "DAGGER_DB_MAX_OPEN_CONNS")

	// Engine
	setEnvDuration(&cfg.Engine.LockTimeout, "DAGGER_ENGINE_LOCK_TIMEOUT")
	setEnvBool(&cfg.Engine.ValidateTasks, "DAGGER_ENGINE_VALIDATE_TASKS")
	setEnvInt(&cfg.Engine.MaxDependencies, "DAGGER_ENGINE_MAX_DEPENDENCIES")

	// Server
	setEnvString(&cfg.Server.Address, "DAGGER_SERVER_ADDRESS")
	setEnvFloat64(&cfg.Server.RateLimit, "DAGGER_SERVER_RATE_LIMIT")
	setEnvInt(&cfg.Server.RateBurst, "DAGGER_SERVER_RATE_BURST")
	setEnvDuration(&cfg.Server.ReadTimeout, "DAGGER_SERVER_READ_TIMEOUT")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "DAGGER_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "DAGGER_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "DAGGER_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "DAGGER_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "DAGGER_OBSERVABILITY_ENABLE_METRICS")

	// Log
	setEnvString(&cfg.Log.Level, "DAGGER_LOG_LEVEL")
	setEnvString(&cfg.Log.Format, "DAGGER_LOG_FORMAT")

	normalize(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvSecret is setEnvString without echoing the value.
func setEnvSecret(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
