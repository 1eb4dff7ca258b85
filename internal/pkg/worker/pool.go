// Package worker provides goroutine pool management.
//
// Naked goroutines are forbidden outside this package. Queue lifecycle
// listeners and realtime socket writes run on bounded ants pools so a slow
// consumer cannot grow the goroutine count without limit.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool names accepted by SubmitDetached.
const (
	PoolEvents   = "events"
	PoolRealtime = "realtime"
)

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
type Pools struct {
	// Events runs queue lifecycle listeners and periodic bookkeeping.
	Events *Pool
	// Realtime runs websocket frame writes; it never blocks the submitter.
	Realtime *Pool

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	EventPoolSize    int
	RealtimePoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		EventPoolSize:    16,
		RealtimePoolSize: 64,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	eventAnts, err := ants.NewPool(cfg.EventPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	// Realtime emits are fire-and-forget: a saturated pool drops the write
	// rather than stalling the dispatcher.
	realtimeAnts, err := ants.NewPool(cfg.RealtimePoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		eventAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		Events:        &Pool{pool: eventAnts, name: PoolEvents},
		Realtime:      &Pool{pool: realtimeAnts, name: PoolRealtime},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Name returns the pool name used in logs.
func (p *Pool) Name() string {
	return p.name
}

// Submit submits a context-aware task.
// If ctx is already cancelled, returns ctx.Err() without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		// ctx may have been cancelled while queued
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// SubmitDetached submits a background task bound to the service lifecycle
// context instead of a request context. It survives request cancellation but
// still observes graceful shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	var pool *Pool
	switch poolName {
	case PoolRealtime:
		pool = p.Realtime
	default:
		pool = p.Events
	}

	err := pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", pool.name),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Shutdown cancels the service context, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.Events.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Event pool shutdown timeout", zap.Error(err))
	}
	if err := p.Realtime.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Realtime pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		PoolEvents: map[string]int{
			"running": p.Events.pool.Running(),
			"free":    p.Events.pool.Free(),
			"cap":     p.Events.pool.Cap(),
		},
		PoolRealtime: map[string]int{
			"running": p.Realtime.pool.Running(),
			"free":    p.Realtime.pool.Free(),
			"cap":     p.Realtime.pool.Cap(),
		},
	}
}
