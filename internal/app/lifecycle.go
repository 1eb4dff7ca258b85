package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/pkg/worker"
)

const heartbeatInterval = 30 * time.Second

// Start starts consumers, the realtime bridge and the session heartbeat.
func (a *Application) Start(ctx context.Context) error {
	if a.Infra == nil {
		return nil
	}

	if err := a.Infra.Queue.Start(ctx); err != nil {
		return fmt.Errorf("start queue broker: %w", err)
	}
	logger.Info("Queue broker started, jobs will now be consumed")

	if a.Infra.Bridge != nil {
		if err := a.Infra.Bridge.Start(ctx); err != nil {
			return fmt.Errorf("start realtime bridge: %w", err)
		}
	}

	// The heartbeat runs until the pools shut down.
	hub := a.Infra.Hub
	if err := a.Infra.Pools.SubmitDetached(worker.PoolEvents, func(svcCtx context.Context) {
		hub.Heartbeat(svcCtx, heartbeatInterval)
	}); err != nil {
		return fmt.Errorf("start realtime heartbeat: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down all application components. In-flight jobs
// finish before the queue broker returns, bounded by ctx.
func (a *Application) Shutdown(ctx context.Context) {
	if a.Infra != nil && a.Infra.Queue != nil {
		if err := a.Infra.Queue.Close(ctx); err != nil {
			logger.Error("failed to stop queue broker", zap.Error(err))
		}
	}

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.Infra != nil {
		a.Infra.Close()
	}
}
