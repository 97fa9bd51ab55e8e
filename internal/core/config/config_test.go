package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dagger.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1

[db]
driver = "Postgres"
dsn = "postgres://dagger@localhost/dagger"
max_open_conns = 4

[engine]
lock_timeout = "750ms"
validate_tasks = true

[server]
address = ":9000"
rate_limit = 5.5
rate_burst = 10

[log]
level = "DEBUG"
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Driver != "postgres" {
		t.Errorf("expected normalized driver postgres, got %q", cfg.DB.Driver)
	}
	if cfg.DB.MaxOpenConns != 4 {
		t.Errorf("expected max_open_conns 4, got %d", cfg.DB.MaxOpenConns)
	}
	if cfg.Engine.LockTimeout != 750*time.Millisecond {
		t.Errorf("expected lock_timeout 750ms, got %v", cfg.Engine.LockTimeout)
	}
	if !cfg.Engine.ValidateTasks {
		t.Error("expected validate_tasks to be enabled")
	}
	if cfg.Engine.MaxDependencies != 100 {
		t.Errorf("expected default max_dependencies 100, got %d", cfg.Engine.MaxDependencies)
	}
	if cfg.Server.Address != ":9000" || cfg.Server.RateLimit != 5.5 || cfg.Server.RateBurst != 10 {
		t.Errorf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log section: %+v", cfg.Log)
	}
	if cfg.Observability.Port != 9090 {
		t.Errorf("expected default observability port 9090, got %d", cfg.Observability.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path == "" {
		t.Fatalf("expected sqlite defaults, got %+v", cfg.DB)
	}
	if cfg.Engine.LockTimeout != 5*time.Second {
		t.Fatalf("expected 5s lock timeout, got %v", cfg.Engine.LockTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown driver", content: "[db]\ndriver = \"oracle\"\n", want: "db.driver"},
		{name: "postgres without dsn", content: "[db]\ndriver = \"postgres\"\n", want: "db.dsn"},
		{name: "bad log level", content: "[log]\nlevel = \"loud\"\n", want: "log.level"},
		{name: "bad log format", content: "[log]\nformat = \"xml\"\n", want: "log.format"},
		{name: "future version", content: "version = 9\n", want: "newer than supported"},
		{name: "bad port", content: "[observability]\nport = 70000\n", want: "observability.port"},
		{name: "malformed toml", content: "[db\n", want: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("expected defaults, got %+v", cfg.DB)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DAGGER_DB_DRIVER", " POSTGRES ")
	t.Setenv("DAGGER_DB_DSN", "postgres://env")
	t.Setenv("DAGGER_ENGINE_LOCK_TIMEOUT", "2s")
	t.Setenv("DAGGER_ENGINE_VALIDATE_TASKS", "TRUE")
	t.Setenv("DAGGER_SERVER_RATE_BURST", "not-a-number")
	t.Setenv("DAGGER_OBSERVABILITY_PORT", "9191")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)

	if cfg.DB.Driver != "postgres" || cfg.DB.DSN != "postgres://env" {
		t.Errorf("db overrides not applied: %+v", cfg.DB)
	}
	if cfg.Engine.LockTimeout != 2*time.Second || !cfg.Engine.ValidateTasks {
		t.Errorf("engine overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Server.RateBurst != 100 {
		t.Errorf("unparseable override must be ignored, got %d", cfg.Server.RateBurst)
	}
	if cfg.Observability.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.Observability.Port)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("overridden config must validate: %v", err)
	}
}
