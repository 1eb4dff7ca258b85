package queue

import (
	"time"

	"givedesk.io/backoffice/internal/config"
)

// BackoffType selects how the retry delay grows between attempts.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// maxBackoff caps exponential growth.
const maxBackoff = time.Hour

// Backoff is a retry delay policy. It travels inside the job envelope so a
// retry uses the policy the job was enqueued with.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// IsZero reports whether no policy was set.
func (b Backoff) IsZero() bool {
	return b.Delay <= 0
}

// Next returns the delay after the given failed attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if b.IsZero() {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	d := b.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Priority bounds accepted by the broker; 1 is the most urgent.
const (
	PriorityHighest = 1
	PriorityLowest  = 4
)

// JobOptions are per-job overrides. Zero fields inherit the queue default.
type JobOptions struct {
	MaxAttempts int
	Backoff     *Backoff
	Priority    int
}

// merge lays o over defaults.
func (o *JobOptions) merge(defaults JobOptions) JobOptions {
	out := defaults
	if o == nil {
		return out
	}
	if o.MaxAttempts > 0 {
		out.MaxAttempts = o.MaxAttempts
	}
	if o.Backoff != nil && !o.Backoff.IsZero() {
		b := *o.Backoff
		if b.Type == "" {
			b.Type = BackoffFixed
		}
		out.Backoff = &b
	}
	if o.Priority != 0 {
		out.Priority = clampPriority(o.Priority)
	}
	return out
}

func clampPriority(p int) int {
	switch {
	case p < PriorityHighest:
		return PriorityHighest
	case p > PriorityLowest:
		return PriorityLowest
	}
	return p
}

// defaultOptions builds the queue-level defaults from configuration.
func defaultOptions(cfg config.QueueConfig) JobOptions {
	attempts := cfg.DefaultMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return JobOptions{
		MaxAttempts: attempts,
		Backoff: &Backoff{
			Type:  BackoffType(cfg.Backoff.Type),
			Delay: cfg.Backoff.Delay,
		},
		Priority: PriorityHighest,
	}
}
