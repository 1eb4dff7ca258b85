package modules

import (
	"context"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/queue"
)

// AdminModule exposes queue administration and readiness probes.
type AdminModule struct {
	infra *Infrastructure
}

func NewAdminModule(infra *Infrastructure) *AdminModule {
	return &AdminModule{infra: infra}
}

func (m *AdminModule) Name() string { return "admin" }

func (m *AdminModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Queues = m.infra.Queue

	if deps.HealthChecks == nil {
		deps.HealthChecks = map[string]handlers.HealthCheck{}
	}
	deps.HealthChecks["database"] = m.infra.DB.Ping
	if rdb := m.infra.Redis; rdb != nil {
		deps.HealthChecks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
}

func (m *AdminModule) RegisterWorkers(*queue.Registry) error { return nil }

func (m *AdminModule) Shutdown(context.Context) error { return nil }
