// Package store persists notification records and recipient profiles in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

const notificationColumns = `id, recipient_id, recipient_role, title, body, payload, category,
	channel, status, read, read_at, created_at, sent_at`

// ListFilter pages a recipient's inbox. Page is 1-based.
type ListFilter struct {
	UnreadOnly bool
	Page       int
	PerPage    int
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Normalized returns the effective page and page size.
func (f ListFilter) Normalized() (page, perPage int) {
	perPage = f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	page = f.Page
	if page < 1 {
		page = 1
	}
	return page, perPage
}

func (f ListFilter) limitOffset() (int, int) {
	page, perPage := f.Normalized()
	return perPage, (page - 1) * perPage
}

// NotificationStore is the durable notification record store.
// Records are never deleted here.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a NotificationStore.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Create inserts rec as given.
func (s *NotificationStore) Create(ctx context.Context, rec *domain.NotificationRecord) error {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.RecipientID, string(rec.RecipientRole), rec.Title, rec.Body, payload,
		string(rec.Category), string(rec.Channel), string(rec.Status), rec.Read, rec.ReadAt,
		rec.CreatedAt, rec.SentAt,
	)
	if err != nil {
		return apperrors.ExternalServiceError(err, "insert notification")
	}
	return nil
}

// Get returns one record by id.
func (s *NotificationStore) Get(ctx context.Context, id uuid.UUID) (*domain.NotificationRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	rec, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotificationNotFound(id.String())
	}
	if err != nil {
		return nil, apperrors.ExternalServiceError(err, "get notification")
	}
	return rec, nil
}

// ListByRecipient returns one page of the recipient's notifications, newest
// first, and the total matching the filter.
func (s *NotificationStore) ListByRecipient(
	ctx context.Context,
	recipientID string,
	role domain.RecipientRole,
	filter ListFilter,
) ([]*domain.NotificationRecord, int, error) {
	limit, offset := filter.limitOffset()

	where := `recipient_id = $1 AND recipient_role = $2`
	if filter.UnreadOnly {
		where += ` AND read = FALSE`
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE `+where,
		recipientID, string(role),
	).Scan(&total); err != nil {
		return nil, 0, apperrors.ExternalServiceError(err, "count notifications")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		recipientID, string(role), limit, offset,
	)
	if err != nil {
		return nil, 0, apperrors.ExternalServiceError(err, "list notifications")
	}
	defer rows.Close()

	items := make([]*domain.NotificationRecord, 0, limit)
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, 0, apperrors.ExternalServiceError(err, "scan notification")
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.ExternalServiceError(err, "iterate notifications")
	}
	return items, total, nil
}

// UnreadCount returns the recipient's unread total.
func (s *NotificationStore) UnreadCount(ctx context.Context, recipientID string, role domain.RecipientRole) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND recipient_role = $2 AND read = FALSE`,
		recipientID, string(role),
	).Scan(&count)
	if err != nil {
		return 0, apperrors.ExternalServiceError(err, "count unread notifications")
	}
	return count, nil
}

// MarkRead sets the read flag on a record owned by the caller. Repeating the
// call is a no-op that keeps the first read_at. A record owned by someone
// else is reported as not found and left untouched.
func (s *NotificationStore) MarkRead(
	ctx context.Context,
	id uuid.UUID,
	recipientID string,
	role domain.RecipientRole,
) (*domain.NotificationRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND recipient_id = $2 AND recipient_role = $3
		RETURNING `+notificationColumns,
		id, recipientID, string(role),
	)
	rec, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotificationNotFound(id.String())
	}
	if err != nil {
		return nil, apperrors.ExternalServiceError(err, "mark notification read")
	}
	return rec, nil
}

// MarkAllRead marks every unread record of the recipient and returns how many changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, recipientID string, role domain.RecipientRole) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = now()
		WHERE recipient_id = $1 AND recipient_role = $2 AND read = FALSE`,
		recipientID, string(role),
	)
	if err != nil {
		return 0, apperrors.ExternalServiceError(err, "mark all notifications read")
	}
	return tag.RowsAffected(), nil
}

// UpdateStatus moves a record along its delivery lifecycle; SENT stamps sent_at.
func (s *NotificationStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2::text,
		    sent_at = CASE WHEN $2::text = 'SENT' THEN now() ELSE sent_at END
		WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return apperrors.ExternalServiceError(err, "update notification status")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotificationNotFound(id.String())
	}
	return nil
}

// StatusCounts groups records created since the given time by status.
func (s *NotificationStore) StatusCounts(ctx context.Context, since time.Time) (map[domain.Status]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM notifications
		WHERE created_at >= $1
		GROUP BY status`, since)
	if err != nil {
		return nil, apperrors.ExternalServiceError(err, "count notifications by status")
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.ExternalServiceError(err, "scan status count")
		}
		counts[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ExternalServiceError(err, "iterate status counts")
	}
	return counts, nil
}

func scanNotification(row pgx.Row) (*domain.NotificationRecord, error) {
	var (
		rec                             domain.NotificationRecord
		role, category, channel, status string
	)
	err := row.Scan(
		&rec.ID, &rec.RecipientID, &role, &rec.Title, &rec.Body, &rec.Payload, &category,
		&channel, &status, &rec.Read, &rec.ReadAt, &rec.CreatedAt, &rec.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	rec.RecipientRole = domain.RecipientRole(role)
	rec.Category = domain.Category(category)
	rec.Channel = domain.Channel(channel)
	rec.Status = domain.Status(status)
	return &rec, nil
}
