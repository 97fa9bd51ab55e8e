package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	DB            Database      `toml:"db"`
	Engine        Engine        `toml:"engine"`
	Server        Server        `toml:"server"`
	Observability Observability `toml:"observability"`
	Log           Log           `toml:"log"`
}

type Database struct {
	Driver       string        `toml:"driver"`
	Path         string        `toml:"path"`
	DSN          string        `toml:"dsn"`
	BusyTimeout  time.Duration `toml:"busy_timeout"`
	MaxOpenConns int           `toml:"max_open_conns"`
}

type Engine struct {
	// LockTimeout bounds the wait for the mutation gate before a CONFLICT.
	LockTimeout     time.Duration `toml:"lock_timeout"`
	ValidateTasks   bool          `toml:"validate_tasks"`
	MaxDependencies int           `toml:"max_dependencies"`
}

type Server struct {
	Address     string        `toml:"address"`
	RateLimit   float64       `toml:"rate_limit"`
	RateBurst   int           `toml:"rate_burst"`
	ReadTimeout time.Duration `toml:"read_timeout"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
	ServiceName   string `toml:"service_name"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
