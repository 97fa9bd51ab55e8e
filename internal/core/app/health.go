package app

import (
	"context"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (a *App) HealthService() *HealthService {
	return NewHealthService(a)
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	// Check component store
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.app.store.Ping(pingCtx); err != nil {
		status.Status = "down"
		status.Components["store"] = err.Error()
	} else {
		status.Components["store"] = "ok (" + s.app.Config.DB.Driver + ")"
	}

	// Check task directory
	if s.app.tasks != nil {
		status.Components["tasks"] = "ok"
	} else if s.app.Config.Engine.ValidateTasks {
		status.Status = "degraded"
		status.Components["tasks"] = "missing but validation enabled in config"
	}

	return status
}
