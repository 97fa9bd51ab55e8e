package app

import (
	"fmt"
	"log/slog"

	"dagger/internal/core/config"
	"dagger/internal/core/ports"
	"dagger/internal/data/store"
	"dagger/internal/data/tasks"
	"dagger/internal/engine/dag"
)

// Dependencies lets callers (and tests) supply their own collaborators.
// A nil Tasks disables task validation and task details.
type Dependencies struct {
	Store  ports.ComponentRepository
	Tasks  ports.TaskDirectory
	Logger *slog.Logger
}

type App struct {
	Config *config.Config

	store   ports.ComponentRepository
	tasks   ports.TaskDirectory
	mutator *dag.Mutator
	logger  *slog.Logger
}

// New opens the configured database and wires the engine on top of it.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	s, err := store.Open(store.Options{
		Driver:       cfg.DB.Driver,
		Path:         cfg.DB.Path,
		DSN:          cfg.DB.DSN,
		BusyTimeout:  cfg.DB.BusyTimeout,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		LockTimeout:  cfg.Engine.LockTimeout,
	})
	if err != nil {
		return nil, err
	}
	return NewWithDependencies(cfg, Dependencies{
		Store: s,
		Tasks: tasks.NewDirectory(s.DB(), s.Dialect()),
	})
}

func NewWithDependencies(cfg *config.Config, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("component store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Config: cfg,
		store:  deps.Store,
		tasks:  deps.Tasks,
		logger: logger,
		mutator: dag.NewMutator(deps.Store,
			dag.WithLockTimeout(cfg.Engine.LockTimeout),
			dag.WithLogger(logger),
		),
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
