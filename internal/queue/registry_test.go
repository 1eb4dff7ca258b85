package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"

	"givedesk.io/backoffice/internal/config"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

type insertCall struct {
	args river.JobArgs
	opts *river.InsertOpts
}

type fakeClient struct {
	mu        sync.Mutex
	cfg       *river.Config
	inserts   []insertCall
	nextID    int64
	insertErr error
	starts    int
	stops     int
	paused    []string
	resumed   []string
	events    chan *river.Event
	cancelled bool
}

func (f *fakeClient) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeClient) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeClient) Insert(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	f.inserts = append(f.inserts, insertCall{args: args, opts: opts})
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: f.nextID, Queue: opts.Queue}}, nil
}

func (f *fakeClient) QueuePause(_ context.Context, name string, _ *river.QueuePauseOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = append(f.paused, name)
	return nil
}

func (f *fakeClient) QueueResume(_ context.Context, name string, _ *river.QueuePauseOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, name)
	return nil
}

func (f *fakeClient) Subscribe(...river.EventKind) (<-chan *river.Event, func()) {
	f.events = make(chan *river.Event, 8)
	return f.events, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled = true
	}
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Prefix:             "test_queue",
		DefaultConcurrency: 2,
		Concurrency:        map[string]int{config.QueueNotification: 10},
		DefaultMaxAttempts: 3,
		Backoff:            config.BackoffConfig{Type: "exponential", Delay: 2 * time.Second},
		JobTimeout:         time.Minute,
	}
}

func newTestRegistry(t *testing.T, pools *worker.Pools) (*Registry, *fakeClient, *int) {
	t.Helper()
	fake := &fakeClient{}
	builds := 0
	r := newRegistry(testQueueConfig(), pools, func(cfg *river.Config) (jobClient, error) {
		builds++
		fake.cfg = cfg
		return fake, nil
	})
	return r, fake, &builds
}

func noopHandler(context.Context, *Job) error { return nil }

func TestRegistry_UseBeforeInitialize(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := r.AddJob(ctx, "mystery", "x", nil, nil)
	require.Equal(t, apperrors.KindQueueNotFound, apperrors.KindOf(err))

	_, err = r.AddJob(ctx, config.QueueNotification, "send_notification", map[string]string{}, nil)
	require.Equal(t, apperrors.KindQueueNotInitialized, apperrors.KindOf(err))

	_, err = r.GetQueue(config.QueueNotification)
	require.Equal(t, apperrors.KindQueueNotInitialized, apperrors.KindOf(err))

	_, err = r.Queues()
	require.Equal(t, apperrors.KindQueueNotInitialized, apperrors.KindOf(err))
}

func TestRegistry_InitializeIsIdempotent(t *testing.T) {
	t.Parallel()
	r, _, builds := newTestRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, r.Initialize(ctx))
	require.NoError(t, r.Initialize(ctx))
	require.Equal(t, 1, *builds)

	queues, err := r.Queues()
	require.NoError(t, err)
	names := make([]string, 0, len(queues))
	for _, q := range queues {
		names = append(names, q.Name())
	}
	require.Equal(t, []string{"notification", "email", "payment", "report"}, names)

	_, err = r.GetQueue("sms")
	require.Equal(t, apperrors.KindQueueNotFound, apperrors.KindOf(err))
}

func TestRegistry_RegisterWorker(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)

	require.NoError(t, r.RegisterWorker(config.QueueNotification, noopHandler))
	require.NoError(t, r.RegisterWorker(config.QueueEmail, noopHandler))

	err := r.RegisterWorker(config.QueueNotification, noopHandler)
	require.ErrorIs(t, err, ErrWorkerAlreadyRegistered)

	err = r.RegisterWorker("sms", noopHandler)
	require.Equal(t, apperrors.KindQueueNotFound, apperrors.KindOf(err))

	require.NoError(t, r.Initialize(context.Background()))

	err = r.RegisterWorker(config.QueueReport, noopHandler)
	require.ErrorIs(t, err, ErrRegistryInitialized)

	// Only queues with a handler are consumed; concurrency falls back to the default.
	require.Len(t, fake.cfg.Queues, 2)
	require.Equal(t, 10, fake.cfg.Queues[config.QueueNotification].MaxWorkers)
	require.Equal(t, 2, fake.cfg.Queues[config.QueueEmail].MaxWorkers)
	require.True(t, fake.cfg.SkipUnknownJobCheck)
	require.Equal(t, "test_queue", fake.cfg.Schema)
	require.Equal(t, 3, fake.cfg.MaxAttempts)

	payment, err := r.GetQueue(config.QueuePayment)
	require.NoError(t, err)
	require.False(t, payment.HasConsumer())

	notification, err := r.GetQueue(config.QueueNotification)
	require.NoError(t, err)
	require.Equal(t, 10, notification.Concurrency())
}

func TestRegistry_AddJobMergesOptionsOverDefaults(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.Initialize(ctx))

	id, err := r.AddJob(ctx, config.QueueNotification, "send_notification", map[string]string{"title": "hi"}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	id, err = r.AddJob(ctx, config.QueuePayment, "settle_pledge", json.RawMessage(`{"pledge_id":"p-1"}`), &JobOptions{
		MaxAttempts: 5,
		Backoff:     &Backoff{Delay: time.Second},
		Priority:    9,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, id)

	require.Len(t, fake.inserts, 2)

	first := fake.inserts[0]
	require.Equal(t, config.QueueNotification, first.opts.Queue)
	require.Equal(t, 3, first.opts.MaxAttempts)
	require.Equal(t, PriorityHighest, first.opts.Priority)
	args, ok := first.args.(NotificationArgs)
	require.True(t, ok, "notification queue uses NotificationArgs, got %T", first.args)
	require.Equal(t, "send_notification", args.JobKind)
	require.JSONEq(t, `{"title":"hi"}`, string(args.Payload))
	require.Equal(t, Backoff{Type: BackoffExponential, Delay: 2 * time.Second}, args.Backoff)

	second := fake.inserts[1]
	require.Equal(t, config.QueuePayment, second.opts.Queue)
	require.Equal(t, 5, second.opts.MaxAttempts)
	require.Equal(t, PriorityLowest, second.opts.Priority)
	payArgs, ok := second.args.(PaymentArgs)
	require.True(t, ok)
	require.Equal(t, Backoff{Type: BackoffFixed, Delay: time.Second}, payArgs.Backoff)
	require.JSONEq(t, `{"pledge_id":"p-1"}`, string(payArgs.Payload))
}

func TestRegistry_AddJobInsertFailureIsRetryable(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.Initialize(ctx))
	fake.insertErr = errors.New("connection refused")

	_, err := r.AddJob(ctx, config.QueueEmail, "send_email", map[string]string{}, nil)
	require.Equal(t, apperrors.KindExternalService, apperrors.KindOf(err))
	require.True(t, apperrors.IsRetryable(err))
}

func TestRegistry_StartAndCloseAreIdempotent(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.RegisterWorker(config.QueueNotification, noopHandler))

	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx))
	require.Equal(t, 1, fake.starts)

	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
	require.Equal(t, 1, fake.stops)

	_, err := r.AddJob(ctx, config.QueueNotification, "send_notification", nil, nil)
	require.ErrorIs(t, err, ErrRegistryClosed)
	require.ErrorIs(t, r.Initialize(ctx), ErrRegistryClosed)
}

func TestRegistry_StartWithoutHandlersIsInsertOnly(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	require.Zero(t, fake.starts)
	require.Nil(t, fake.cfg.Queues)

	require.NoError(t, r.Close(ctx))
	require.Zero(t, fake.stops)
}

func TestRegistry_EventListenerStopsOnClose(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{EventPoolSize: 2, RealtimePoolSize: 2})
	require.NoError(t, err)
	defer pools.Shutdown()

	r, fake, _ := newTestRegistry(t, pools)
	ctx := context.Background()
	require.NoError(t, r.Initialize(ctx))
	require.NotNil(t, fake.events)

	fake.events <- &river.Event{
		Kind: river.EventKindJobCompleted,
		Job:  &rivertype.JobRow{ID: 1, Queue: config.QueueNotification, State: rivertype.JobStateCompleted},
	}
	fake.events <- &river.Event{Kind: river.EventKindJobFailed}

	require.NoError(t, r.Close(ctx))
	require.True(t, fake.cancelled)
}

func TestRegistry_AddPeriodic(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)

	require.NoError(t, r.AddPeriodic(config.QueueReport, "notification_digest", time.Hour,
		func() interface{} { return map[string]string{"window": "24h"} }, true))

	err := r.AddPeriodic(config.QueueReport, "bad", 0, nil, false)
	require.Error(t, err)

	err = r.AddPeriodic("ledger", "x", time.Hour, nil, false)
	require.Equal(t, apperrors.KindQueueNotFound, apperrors.KindOf(err))

	require.NoError(t, r.Initialize(context.Background()))
	require.Len(t, fake.cfg.PeriodicJobs, 1)

	err = r.AddPeriodic(config.QueueReport, "late", time.Hour, nil, false)
	require.ErrorIs(t, err, ErrRegistryInitialized)
}

func TestRegistry_AddPeriodicRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)

	err := r.AddPeriodic(config.QueueReport, "broken", time.Hour,
		func() interface{} { return map[string]interface{}{"ch": make(chan int)} }, false)
	require.Error(t, err)
	require.Equal(t, apperrors.KindBusinessLogic, apperrors.KindOf(err))

	require.NoError(t, r.Initialize(context.Background()))
	require.Empty(t, fake.cfg.PeriodicJobs)
}

func TestRegistry_FailedInitializeCanBeRetried(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{EventPoolSize: 2, RealtimePoolSize: 2})
	require.NoError(t, err)
	pools.Shutdown()

	r, _, builds := newTestRegistry(t, pools)
	ctx := context.Background()

	require.Error(t, r.Initialize(ctx), "event listener cannot start on a closed pool")
	require.Error(t, r.Initialize(ctx), "a failed Initialize must not leave the registry initialized")
	require.Equal(t, 2, *builds)

	_, err = r.GetQueue(config.QueueNotification)
	require.Equal(t, apperrors.KindQueueNotInitialized, apperrors.KindOf(err))
	_, err = r.AddJob(ctx, config.QueueNotification, "send_notification", map[string]string{}, nil)
	require.Equal(t, apperrors.KindQueueNotInitialized, apperrors.KindOf(err))
}

func TestQueue_PauseResume(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.Initialize(ctx))

	q, err := r.GetQueue(config.QueueEmail)
	require.NoError(t, err)
	require.NoError(t, q.Pause(ctx))
	require.NoError(t, q.Resume(ctx))
	require.Equal(t, []string{"email"}, fake.paused)
	require.Equal(t, []string{"email"}, fake.resumed)
	require.Equal(t, 3, q.Defaults().MaxAttempts)
}

func TestRegistry_QueueAdministration(t *testing.T) {
	t.Parallel()
	r, fake, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := r.QueueInfos()
	require.Equal(t, apperrors.KindQueueNotInitialized, apperrors.KindOf(err))

	require.NoError(t, r.RegisterWorker(config.QueueNotification, func(context.Context, *Job) error { return nil }))
	require.NoError(t, r.Initialize(ctx))

	infos, err := r.QueueInfos()
	require.NoError(t, err)
	require.Len(t, infos, 4)
	require.Equal(t, Info{Name: "notification", Concurrency: 10, Consumer: true, MaxAttempts: 3}, infos[0])
	require.False(t, infos[2].Consumer)

	require.NoError(t, r.PauseQueue(ctx, config.QueueReport))
	require.NoError(t, r.ResumeQueue(ctx, config.QueueReport))
	require.Equal(t, []string{"report"}, fake.paused)
	require.Equal(t, []string{"report"}, fake.resumed)

	err = r.PauseQueue(ctx, "mystery")
	require.Equal(t, apperrors.KindQueueNotFound, apperrors.KindOf(err))
}

func TestObserveEvent_ToleratesMissingJob(t *testing.T) {
	t.Parallel()
	observeEvent(nil)
	observeEvent(&river.Event{Kind: river.EventKindJobCancelled})
	observeEvent(&river.Event{
		Kind: river.EventKindJobFailed,
		Job:  &rivertype.JobRow{ID: 9, Queue: config.QueueEmail, State: rivertype.JobStateDiscarded, Attempt: 3},
	})
}
