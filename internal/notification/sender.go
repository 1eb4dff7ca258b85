// Package notification implements notification creation and multi-channel
// dispatch.
//
// The creation path persists a record and enqueues it on the notification
// queue. The Dispatcher is that queue's handler: it resolves the recipient's
// preferences and hands the record to each eligible channel Sender in a
// fixed order.
package notification

import (
	"context"

	"github.com/google/uuid"

	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/queue"
)

// Sender delivers a notification over one channel.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, rec *domain.NotificationRecord) error
}

// RecipientResolver looks a recipient up in the role's backing store.
type RecipientResolver interface {
	Resolve(ctx context.Context, id string, role domain.RecipientRole) (*domain.Recipient, error)
}

// RecipientDirectory is the recipient store used by the creation path.
type RecipientDirectory interface {
	RecipientResolver
	UpdatePreferences(ctx context.Context, id string, role domain.RecipientRole, prefs domain.NotificationPreferences) error
	AddPushToken(ctx context.Context, id string, role domain.RecipientRole, token string) error
	RemovePushTokens(ctx context.Context, id string, role domain.RecipientRole, tokens []string) error
}

// TokenPruner removes tokens from a recipient's token set.
type TokenPruner interface {
	RemovePushTokens(ctx context.Context, id string, role domain.RecipientRole, tokens []string) error
}

// Enqueuer places jobs on named queues.
type Enqueuer interface {
	AddJob(ctx context.Context, queueName, kind string, payload interface{}, opts *queue.JobOptions) (int64, error)
}

// RecordStore persists notification records.
type RecordStore interface {
	Create(ctx context.Context, rec *domain.NotificationRecord) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error
}
