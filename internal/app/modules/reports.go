package modules

import (
	"context"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/jobs"
	"givedesk.io/backoffice/internal/queue"
)

// ReportsModule schedules the periodic notification digest.
type ReportsModule struct {
	infra  *Infrastructure
	digest *jobs.DigestWorker
}

func NewReportsModule(infra *Infrastructure) *ReportsModule {
	return &ReportsModule{
		infra:  infra,
		digest: jobs.NewDigestWorker(infra.Records, infra.Config.Reports.DigestWindow),
	}
}

func (m *ReportsModule) Name() string { return "reports" }

func (m *ReportsModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *ReportsModule) RegisterWorkers(reg *queue.Registry) error {
	return jobs.Register(reg, m.digest, m.infra.Config.Reports.DigestInterval)
}

func (m *ReportsModule) Shutdown(context.Context) error { return nil }
