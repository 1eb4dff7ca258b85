package queue

import (
	"encoding/json"

	"github.com/riverqueue/river"

	"givedesk.io/backoffice/internal/config"
)

// Envelope is the immutable job body. Retries resubmit it unchanged.
type Envelope struct {
	JobKind string          `json:"job_kind"`
	Payload json.RawMessage `json:"payload"`
	Backoff Backoff         `json:"backoff"`
}

func (e Envelope) envelope() Envelope { return e }

// One River args type per named queue; the broker routes on River kind, the
// handler sees the envelope's JobKind.

type NotificationArgs struct{ Envelope }

func (NotificationArgs) Kind() string { return "queue_notification" }

type EmailArgs struct{ Envelope }

func (EmailArgs) Kind() string { return "queue_email" }

type PaymentArgs struct{ Envelope }

func (PaymentArgs) Kind() string { return "queue_payment" }

type ReportArgs struct{ Envelope }

func (ReportArgs) Kind() string { return "queue_report" }

type jobArgs interface {
	river.JobArgs
	envelope() Envelope
}

// queueKind binds a queue name to its args type.
type queueKind struct {
	newArgs   func(Envelope) river.JobArgs
	addWorker func(*river.Workers, *binding) error
}

func kindFor[T jobArgs](wrap func(Envelope) T) queueKind {
	return queueKind{
		newArgs: func(e Envelope) river.JobArgs { return wrap(e) },
		addWorker: func(workers *river.Workers, b *binding) error {
			return river.AddWorkerSafely[T](workers, &queueWorker[T]{binding: b})
		},
	}
}

var queueKinds = map[string]queueKind{
	config.QueueNotification: kindFor(func(e Envelope) NotificationArgs { return NotificationArgs{e} }),
	config.QueueEmail:        kindFor(func(e Envelope) EmailArgs { return EmailArgs{e} }),
	config.QueuePayment:      kindFor(func(e Envelope) PaymentArgs { return PaymentArgs{e} }),
	config.QueueReport:       kindFor(func(e Envelope) ReportArgs { return ReportArgs{e} }),
}
