package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"

	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

func TestBackoff_Next(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"zero policy", Backoff{}, 3, 0},
		{"fixed first", Backoff{Type: BackoffFixed, Delay: 5 * time.Second}, 1, 5 * time.Second},
		{"fixed later", Backoff{Type: BackoffFixed, Delay: 5 * time.Second}, 4, 5 * time.Second},
		{"exponential first", Backoff{Type: BackoffExponential, Delay: time.Second}, 1, time.Second},
		{"exponential third", Backoff{Type: BackoffExponential, Delay: time.Second}, 3, 4 * time.Second},
		{"exponential capped", Backoff{Type: BackoffExponential, Delay: time.Minute}, 20, time.Hour},
		{"attempt below one", Backoff{Type: BackoffExponential, Delay: time.Second}, 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.backoff.Next(tt.attempt))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		wantTerminal bool
	}{
		{"recipient gone", apperrors.ErrRecipientNotFound("STAFF", "s-1"), true},
		{"invalid role", apperrors.ErrInvalidRole("GUEST"), true},
		{"sms not implemented", apperrors.ErrChannelNotImplemented("sms"), true},
		{"store outage", apperrors.ExternalServiceError(errors.New("timeout"), "load"), false},
		{"push batch", apperrors.NewPushNotificationError([]string{"T1"}, errors.New("502")), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, terminal := classify(tt.err)
			require.Equal(t, tt.wantTerminal, terminal)
			require.ErrorIs(t, out, tt.err)
			if tt.wantTerminal {
				require.NotEqual(t, tt.err, out, "terminal errors are wrapped for cancellation")
			} else {
				require.Equal(t, tt.err, out)
			}
		})
	}
}

func notificationJob(env Envelope, attempt, maxAttempts int) *river.Job[NotificationArgs] {
	return &river.Job[NotificationArgs]{
		JobRow: &rivertype.JobRow{
			ID:          42,
			Queue:       "notification",
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
		},
		Args: NotificationArgs{env},
	}
}

func TestQueueWorker_WorkPassesEnvelopeToHandler(t *testing.T) {
	t.Parallel()

	var got *Job
	w := &queueWorker[NotificationArgs]{binding: &binding{
		queue: "notification",
		handler: func(_ context.Context, job *Job) error {
			got = job
			return nil
		},
	}}

	env := Envelope{JobKind: "send_notification", Payload: json.RawMessage(`{"title":"x"}`)}
	require.NoError(t, w.Work(context.Background(), notificationJob(env, 2, 3)))

	require.NotNil(t, got)
	require.EqualValues(t, 42, got.ID)
	require.Equal(t, "send_notification", got.Kind)
	require.Equal(t, 2, got.Attempt)
	require.Equal(t, 3, got.MaxAttempts)

	var decoded map[string]string
	require.NoError(t, got.Decode(&decoded))
	require.Equal(t, "x", decoded["title"])
}

func TestQueueWorker_WorkClassifiesErrors(t *testing.T) {
	t.Parallel()

	terminal := apperrors.ErrRecipientNotFound("ADMIN", "a-1")
	retryable := apperrors.ExternalServiceError(errors.New("conn reset"), "load")

	for _, tc := range []struct {
		name      string
		err       error
		wantCause error
		wrapped   bool
	}{
		{"terminal", terminal, terminal, true},
		{"retryable", retryable, retryable, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := &queueWorker[NotificationArgs]{binding: &binding{
				queue:   "notification",
				handler: func(context.Context, *Job) error { return tc.err },
			}}
			err := w.Work(context.Background(), notificationJob(Envelope{JobKind: "send_notification"}, 1, 3))
			require.ErrorIs(t, err, tc.wantCause)
			if tc.wrapped {
				require.NotEqual(t, tc.err, err)
			} else {
				require.Equal(t, tc.err, err)
			}
		})
	}
}

func TestQueueWorker_NextRetryUsesJobBackoff(t *testing.T) {
	t.Parallel()

	w := &queueWorker[NotificationArgs]{binding: &binding{queue: "notification", handler: noopHandler}}

	before := time.Now()
	next := w.NextRetry(notificationJob(Envelope{Backoff: Backoff{Type: BackoffExponential, Delay: time.Second}}, 3, 5))
	require.False(t, next.Before(before.Add(4*time.Second)))
	require.True(t, next.Before(time.Now().Add(5*time.Second)))

	require.True(t, w.NextRetry(notificationJob(Envelope{}, 1, 3)).IsZero())
}

func TestJob_DecodeInvalidPayloadIsTerminal(t *testing.T) {
	t.Parallel()

	job := &Job{Kind: "send_notification", Payload: json.RawMessage(`{"title":`)}
	var v map[string]interface{}
	err := job.Decode(&v)
	require.Error(t, err)
	require.False(t, apperrors.IsRetryable(err))
}

func TestJobOptions_Merge(t *testing.T) {
	t.Parallel()

	defaults := JobOptions{MaxAttempts: 3, Backoff: &Backoff{Type: BackoffExponential, Delay: time.Second}, Priority: 1}

	var nilOpts *JobOptions
	require.Equal(t, defaults, nilOpts.merge(defaults))

	merged := (&JobOptions{Priority: -3}).merge(defaults)
	require.Equal(t, PriorityHighest, merged.Priority)
	require.Equal(t, 3, merged.MaxAttempts)

	merged = (&JobOptions{Backoff: &Backoff{}}).merge(defaults)
	require.Equal(t, defaults.Backoff, merged.Backoff, "zero backoff keeps the default")
}
