package notification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/store"
)

// Store is the record store used by the Service.
type Store interface {
	RecordStore
	ListByRecipient(ctx context.Context, recipientID string, role domain.RecipientRole, filter store.ListFilter) ([]*domain.NotificationRecord, int, error)
	UnreadCount(ctx context.Context, recipientID string, role domain.RecipientRole) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string, role domain.RecipientRole) (*domain.NotificationRecord, error)
	MarkAllRead(ctx context.Context, recipientID string, role domain.RecipientRole) (int64, error)
}

// Service is the creation path and the recipient-facing inbox.
type Service struct {
	records    Store
	recipients RecipientDirectory
	queue      Enqueuer
	now        func() time.Time
}

// NewService creates a Service.
func NewService(records Store, recipients RecipientDirectory, q Enqueuer) *Service {
	return &Service{records: records, recipients: recipients, queue: q, now: time.Now}
}

// SendNotification persists n as PENDING and enqueues the full record for
// dispatch. The record is SENT once the job is accepted, or FAILED when the
// broker refuses it.
func (s *Service) SendNotification(ctx context.Context, n domain.NewNotification) (*domain.NotificationRecord, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.recipients.Resolve(ctx, n.RecipientID, n.RecipientRole); err != nil {
		return nil, err
	}

	rec := n.Record(s.now())
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}

	log := logger.ForRecipient(string(rec.RecipientRole), rec.RecipientID).
		With(zap.String("notification_id", rec.ID.String()))

	jobID, err := s.queue.AddJob(ctx, config.QueueNotification, JobKindSendNotification, rec, nil)
	if err != nil {
		if serr := s.records.UpdateStatus(ctx, rec.ID, domain.StatusFailed); serr != nil {
			log.Error("Failed to mark notification FAILED", zap.Error(serr))
		}
		rec.Status = domain.StatusFailed
		notificationsCreated.WithLabelValues(string(rec.Category), string(rec.Status)).Inc()
		log.Error("Notification enqueue failed", zap.Error(err))
		if _, ok := apperrors.IsAppError(err); ok {
			return rec, err
		}
		return rec, apperrors.ExternalServiceError(err, "enqueue notification")
	}

	if err := s.records.UpdateStatus(ctx, rec.ID, domain.StatusSent); err != nil {
		// The job is already queued; delivery proceeds regardless.
		log.Warn("Failed to mark notification SENT", zap.Error(err))
	} else {
		sentAt := s.now().UTC()
		rec.Status = domain.StatusSent
		rec.SentAt = &sentAt
	}
	notificationsCreated.WithLabelValues(string(rec.Category), string(rec.Status)).Inc()

	log.Info("Notification queued", zap.Int64("job_id", jobID), zap.String("category", string(rec.Category)))
	return rec, nil
}

// Page is one page of a recipient's inbox.
type Page struct {
	Items   []*domain.NotificationRecord `json:"items"`
	Total   int                          `json:"total"`
	Page    int                          `json:"page"`
	PerPage int                          `json:"per_page"`
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string, role domain.RecipientRole, filter store.ListFilter) (*Page, error) {
	items, total, err := s.records.ListByRecipient(ctx, recipientID, role, filter)
	if err != nil {
		return nil, err
	}
	page, perPage := filter.Normalized()
	return &Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// UnreadCount returns the recipient's unread total.
func (s *Service) UnreadCount(ctx context.Context, recipientID string, role domain.RecipientRole) (int, error) {
	return s.records.UnreadCount(ctx, recipientID, role)
}

// MarkRead marks one of the recipient's notifications read.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, recipientID string, role domain.RecipientRole) (*domain.NotificationRecord, error) {
	return s.records.MarkRead(ctx, id, recipientID, role)
}

// MarkAllRead marks all of the recipient's notifications read.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string, role domain.RecipientRole) (int64, error) {
	return s.records.MarkAllRead(ctx, recipientID, role)
}

// GetPreferences returns the recipient's effective preferences.
func (s *Service) GetPreferences(ctx context.Context, recipientID string, role domain.RecipientRole) (domain.NotificationPreferences, error) {
	r, err := s.recipients.Resolve(ctx, recipientID, role)
	if err != nil {
		return domain.NotificationPreferences{}, err
	}
	return r.EffectivePreferences(), nil
}

// UpdatePreferences replaces the recipient's preferences.
func (s *Service) UpdatePreferences(ctx context.Context, recipientID string, role domain.RecipientRole, prefs domain.NotificationPreferences) (domain.NotificationPreferences, error) {
	for c := range prefs.Types {
		if !c.Valid() {
			return domain.NotificationPreferences{}, apperrors.ValidationError(apperrors.CodeInvalidCategory, "unknown category: "+string(c))
		}
	}
	if prefs.Types == nil {
		prefs.Types = map[domain.Category]bool{}
	}
	if err := s.recipients.UpdatePreferences(ctx, recipientID, role, prefs); err != nil {
		return domain.NotificationPreferences{}, err
	}
	return prefs, nil
}

// RegisterDevice adds a push token to the recipient's set.
func (s *Service) RegisterDevice(ctx context.Context, recipientID string, role domain.RecipientRole, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.ValidationError(apperrors.CodeValidationFailed, "push token is required")
	}
	return s.recipients.AddPushToken(ctx, recipientID, role, token)
}

// UnregisterDevice removes a push token. Removing an unknown token succeeds.
func (s *Service) UnregisterDevice(ctx context.Context, recipientID string, role domain.RecipientRole, token string) error {
	return s.recipients.RemovePushTokens(ctx, recipientID, role, []string{token})
}
