// Package queue is the durable job broker: named queues backed by River on
// PostgreSQL, per-queue worker concurrency and retry classification.
//
// All broker state lives in a Registry with an explicit Initialize/Close
// lifecycle. Handlers are bound with RegisterWorker before Initialize.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/pkg/worker"
)

var (
	// ErrWorkerAlreadyRegistered is returned for a second handler on one queue.
	ErrWorkerAlreadyRegistered = errors.New("queue: worker already registered")
	// ErrRegistryInitialized is returned when registering after Initialize.
	ErrRegistryInitialized = errors.New("queue: registry already initialized")
	// ErrRegistryClosed is returned by operations after Close.
	ErrRegistryClosed = errors.New("queue: registry closed")
)

// jobClient is the subset of *river.Client the registry drives.
type jobClient interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
	QueuePause(ctx context.Context, name string, opts *river.QueuePauseOpts) error
	QueueResume(ctx context.Context, name string, opts *river.QueuePauseOpts) error
	Subscribe(kinds ...river.EventKind) (<-chan *river.Event, func())
}

type clientFactory func(cfg *river.Config) (jobClient, error)

func riverClientFactory(pool *pgxpool.Pool) clientFactory {
	return func(cfg *river.Config) (jobClient, error) {
		client, err := river.NewClient(riverpgxv5.New(pool), cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

type periodicSpec struct {
	queue      string
	kind       string
	interval   time.Duration
	payload    func() interface{}
	runOnStart bool
}

// Registry owns the broker connection, the named queues and their workers.
type Registry struct {
	cfg       config.QueueConfig
	pools     *worker.Pools
	newClient clientFactory
	defaults  JobOptions

	mu          sync.Mutex
	handlers    map[string]Handler
	periodic    []periodicSpec
	queues      map[string]*Queue
	client      jobClient
	initialized bool
	started     bool
	closing     bool
	closed      bool
	unsubscribe func()
	stopEvents  chan struct{}
}

// NewRegistry creates a Registry over the shared pool. Lifecycle listeners
// run on pools' event pool.
func NewRegistry(cfg config.QueueConfig, pool *pgxpool.Pool, pools *worker.Pools) *Registry {
	return newRegistry(cfg, pools, riverClientFactory(pool))
}

func newRegistry(cfg config.QueueConfig, pools *worker.Pools, factory clientFactory) *Registry {
	return &Registry{
		cfg:       cfg,
		pools:     pools,
		newClient: factory,
		defaults:  defaultOptions(cfg),
		handlers:  make(map[string]Handler),
	}
}

func isKnown(name string) bool {
	_, ok := queueKinds[name]
	return ok
}

// RegisterWorker binds handler to the named queue with the configured
// concurrency ceiling. One handler per queue; must precede Initialize.
func (r *Registry) RegisterWorker(queueName string, handler Handler) error {
	if !isKnown(queueName) {
		return apperrors.QueueNotFoundError(queueName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return ErrRegistryClosed
	}
	if r.initialized {
		return fmt.Errorf("register worker for %s: %w", queueName, ErrRegistryInitialized)
	}
	if _, exists := r.handlers[queueName]; exists {
		return fmt.Errorf("register worker for %s: %w", queueName, ErrWorkerAlreadyRegistered)
	}
	r.handlers[queueName] = handler

	logger.Info("Queue worker registered",
		zap.String("queue", queueName),
		zap.Int("concurrency", r.cfg.ConcurrencyFor(queueName)),
	)
	return nil
}

// AddPeriodic schedules a job of kind on queueName every interval. Must
// precede Initialize.
func (r *Registry) AddPeriodic(queueName, kind string, interval time.Duration, payload func() interface{}, runOnStart bool) error {
	if !isKnown(queueName) {
		return apperrors.QueueNotFoundError(queueName)
	}
	if interval <= 0 {
		return fmt.Errorf("periodic %s: interval must be positive", kind)
	}
	if payload != nil {
		if _, err := encodePayload(payload()); err != nil {
			return apperrors.BusinessLogicError(apperrors.CodeJobPayloadInvalid, fmt.Sprintf("periodic %s payload: %v", kind, err))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return fmt.Errorf("periodic %s: %w", kind, ErrRegistryInitialized)
	}
	r.periodic = append(r.periodic, periodicSpec{
		queue: queueName, kind: kind, interval: interval, payload: payload, runOnStart: runOnStart,
	})
	return nil
}

// Initialize builds the broker client and one Queue per named concern.
// Calling it again after success is a no-op.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return ErrRegistryClosed
	}
	if r.initialized {
		return nil
	}

	workers := river.NewWorkers()
	riverQueues := make(map[string]river.QueueConfig, len(r.handlers))
	for name, h := range r.handlers {
		if err := queueKinds[name].addWorker(workers, &binding{queue: name, handler: h}); err != nil {
			return fmt.Errorf("bind worker for %s: %w", name, err)
		}
		riverQueues[name] = river.QueueConfig{MaxWorkers: r.cfg.ConcurrencyFor(name)}
	}

	jobTimeout := r.cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = -1
	}

	rcfg := &river.Config{
		Workers:                     workers,
		MaxAttempts:                 r.defaults.MaxAttempts,
		JobTimeout:                  jobTimeout,
		Schema:                      r.cfg.Prefix,
		CompletedJobRetentionPeriod: r.cfg.CompletedJobRetentionPeriod,
		ErrorHandler:                &panicHandler{},
		PeriodicJobs:                r.buildPeriodicJobs(),
		// Queues without a consumer (payment) still accept durable jobs.
		SkipUnknownJobCheck: true,
	}
	if len(riverQueues) > 0 {
		rcfg.Queues = riverQueues
	}

	client, err := r.newClient(rcfg)
	if err != nil {
		return apperrors.ExternalServiceError(err, "create queue broker client")
	}

	queues := make(map[string]*Queue, len(config.QueueNames))
	for _, name := range config.QueueNames {
		_, hasWorker := r.handlers[name]
		concurrency := 0
		if hasWorker {
			concurrency = r.cfg.ConcurrencyFor(name)
		}
		queues[name] = &Queue{
			name:        name,
			concurrency: concurrency,
			defaults:    r.defaults,
			client:      client,
		}
	}

	if err := r.subscribeEvents(client); err != nil {
		return err
	}
	r.client = client
	r.queues = queues
	r.initialized = true

	logger.Info("Queue broker initialized",
		zap.String("prefix", r.cfg.Prefix),
		zap.Int("consumers", len(riverQueues)),
		zap.Int("periodic_jobs", len(r.periodic)),
	)
	return nil
}

func (r *Registry) buildPeriodicJobs() []*river.PeriodicJob {
	jobs := make([]*river.PeriodicJob, 0, len(r.periodic))
	for _, p := range r.periodic {
		jobs = append(jobs, river.NewPeriodicJob(
			river.PeriodicInterval(p.interval),
			func() (river.JobArgs, *river.InsertOpts) {
				var raw json.RawMessage
				if p.payload != nil {
					encoded, err := encodePayload(p.payload())
					if err != nil {
						logger.Error("Periodic job payload not encodable, enqueuing without payload",
							zap.String("queue", p.queue),
							zap.String("kind", p.kind),
							zap.Error(err),
						)
					} else {
						raw = encoded
					}
				}
				opts := r.defaults
				args := queueKinds[p.queue].newArgs(Envelope{
					JobKind: p.kind,
					Payload: raw,
					Backoff: *opts.Backoff,
				})
				return args, &river.InsertOpts{
					Queue:       p.queue,
					MaxAttempts: opts.MaxAttempts,
					Priority:    opts.Priority,
				}
			},
			&river.PeriodicJobOpts{RunOnStart: p.runOnStart},
		))
	}
	return jobs
}

// subscribeEvents starts the lifecycle listener on the event pool.
// Caller holds r.mu.
func (r *Registry) subscribeEvents(client jobClient) error {
	if r.pools == nil {
		return nil
	}
	events, cancel := client.Subscribe(
		river.EventKindJobCompleted,
		river.EventKindJobFailed,
		river.EventKindJobCancelled,
	)
	stop := make(chan struct{})
	if err := r.pools.SubmitDetached(worker.PoolEvents, func(ctx context.Context) {
		listenEvents(ctx, events, stop)
	}); err != nil {
		cancel()
		return fmt.Errorf("start queue event listener: %w", err)
	}
	r.unsubscribe = cancel
	r.stopEvents = stop
	return nil
}

// Start begins consuming. Queues without a handler are not consumed.
func (r *Registry) Start(ctx context.Context) error {
	if err := r.Initialize(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return ErrRegistryClosed
	}
	if r.started || len(r.handlers) == 0 {
		return nil
	}
	if err := r.client.Start(ctx); err != nil {
		return apperrors.ExternalServiceError(err, "start queue broker")
	}
	r.started = true
	logger.Info("Queue broker started")
	return nil
}

// AddJob enqueues payload on the named queue and returns the job id.
// opts fields override the queue defaults.
func (r *Registry) AddJob(ctx context.Context, queueName, kind string, payload interface{}, opts *JobOptions) (int64, error) {
	if !isKnown(queueName) {
		return 0, apperrors.QueueNotFoundError(queueName)
	}

	r.mu.Lock()
	client, initialized, closed := r.client, r.initialized, r.closed
	r.mu.Unlock()

	if closed {
		return 0, ErrRegistryClosed
	}
	if !initialized {
		return 0, apperrors.QueueNotInitializedError(queueName)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return 0, apperrors.BusinessLogicError(apperrors.CodeJobPayloadInvalid, "encode "+kind+" payload: "+err.Error())
	}

	merged := opts.merge(r.defaults)
	args := queueKinds[queueName].newArgs(Envelope{
		JobKind: kind,
		Payload: raw,
		Backoff: *merged.Backoff,
	})

	res, err := client.Insert(ctx, args, &river.InsertOpts{
		Queue:       queueName,
		MaxAttempts: merged.MaxAttempts,
		Priority:    merged.Priority,
	})
	if err != nil {
		return 0, apperrors.ExternalServiceError(err, "enqueue "+kind+" on "+queueName)
	}

	jobsEnqueued.WithLabelValues(queueName, kind).Inc()
	logger.Debug("Job enqueued",
		zap.String("queue", queueName),
		zap.String("job_kind", kind),
		zap.Int64("job_id", res.Job.ID),
	)
	return res.Job.ID, nil
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	return json.Marshal(payload)
}

// GetQueue returns the administrative handle for a named queue.
func (r *Registry) GetQueue(queueName string) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, apperrors.QueueNotInitializedError(queueName)
	}
	q, ok := r.queues[queueName]
	if !ok {
		return nil, apperrors.QueueNotFoundError(queueName)
	}
	return q, nil
}

// Queues returns every named queue in a stable order.
func (r *Registry) Queues() ([]*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, apperrors.QueueNotInitializedError("")
	}
	out := make([]*Queue, 0, len(config.QueueNames))
	for _, name := range config.QueueNames {
		out = append(out, r.queues[name])
	}
	return out, nil
}

// QueueInfos lists every named queue's configuration.
func (r *Registry) QueueInfos() ([]Info, error) {
	queues, err := r.Queues()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Info())
	}
	return out, nil
}

// PauseQueue pauses the named queue.
func (r *Registry) PauseQueue(ctx context.Context, queueName string) error {
	q, err := r.GetQueue(queueName)
	if err != nil {
		return err
	}
	if err := q.Pause(ctx); err != nil {
		return err
	}
	logger.Info("Queue paused", zap.String("queue", queueName))
	return nil
}

// ResumeQueue resumes the named queue.
func (r *Registry) ResumeQueue(ctx context.Context, queueName string) error {
	q, err := r.GetQueue(queueName)
	if err != nil {
		return err
	}
	if err := q.Resume(ctx); err != nil {
		return err
	}
	logger.Info("Queue resumed", zap.String("queue", queueName))
	return nil
}

// Close stops consumers after in-flight jobs finish, then releases the event
// listener. Jobs being drained may still enqueue follow-up work. Safe to call
// more than once.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	client, started := r.client, r.started
	unsubscribe, stopEvents := r.unsubscribe, r.stopEvents
	r.mu.Unlock()

	var stopErr error
	if started {
		if err := client.Stop(ctx); err != nil {
			stopErr = fmt.Errorf("stop queue broker: %w", err)
		}
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if stopEvents != nil {
		close(stopEvents)
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	logger.Info("Queue broker closed")
	return stopErr
}

// panicHandler logs handler panics. River fails the attempt and the normal
// retry policy applies.
type panicHandler struct{}

func (panicHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	// Failures are logged by the worker with the job kind attached.
	return nil
}

func (panicHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	logger.Error("Job handler panicked",
		zap.String("queue", job.Queue),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Any("panic", panicVal),
		zap.String("trace", trace),
	)
	return nil
}
