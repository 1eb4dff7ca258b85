package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// RecipientStore is the backing store for one recipient role.
//
// Token mutations are single-statement set operations on the row so that
// concurrent registration and pruning never lose each other's updates.
type RecipientStore interface {
	Get(ctx context.Context, id string) (*domain.Recipient, error)
	Upsert(ctx context.Context, r *domain.Recipient) error
	UpdatePreferences(ctx context.Context, id string, prefs domain.NotificationPreferences) error
	AddPushToken(ctx context.Context, id, token string) error
	RemovePushTokens(ctx context.Context, id string, tokens []string) error
}

// RoleTables maps each recipient role to its table.
var RoleTables = map[domain.RecipientRole]string{
	domain.RoleAdmin:       "admins",
	domain.RoleStaff:       "staff",
	domain.RoleContributor: "contributors",
	domain.RoleBeneficiary: "beneficiaries",
}

// Directory resolves recipients through a role → store lookup table.
type Directory struct {
	stores map[domain.RecipientRole]RecipientStore
}

// NewDirectory wires one PostgreSQL table store per role.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	stores := make(map[domain.RecipientRole]RecipientStore, len(RoleTables))
	for role, table := range RoleTables {
		stores[role] = &pgRecipientTable{pool: pool, table: pgx.Identifier{table}.Sanitize(), role: role}
	}
	return &Directory{stores: stores}
}

// NewDirectoryFrom builds a Directory over caller-supplied stores.
func NewDirectoryFrom(stores map[domain.RecipientRole]RecipientStore) *Directory {
	return &Directory{stores: stores}
}

func (d *Directory) storeFor(role domain.RecipientRole) (RecipientStore, error) {
	s, ok := d.stores[role]
	if !ok {
		return nil, apperrors.ErrInvalidRole(string(role))
	}
	return s, nil
}

// Resolve returns the recipient's tokens, email and preferences.
func (d *Directory) Resolve(ctx context.Context, id string, role domain.RecipientRole) (*domain.Recipient, error) {
	s, err := d.storeFor(role)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Upsert creates or refreshes a recipient profile (seeding and tests).
func (d *Directory) Upsert(ctx context.Context, r *domain.Recipient) error {
	s, err := d.storeFor(r.Role)
	if err != nil {
		return err
	}
	return s.Upsert(ctx, r)
}

// UpdatePreferences replaces the whole preference document.
func (d *Directory) UpdatePreferences(ctx context.Context, id string, role domain.RecipientRole, prefs domain.NotificationPreferences) error {
	s, err := d.storeFor(role)
	if err != nil {
		return err
	}
	return s.UpdatePreferences(ctx, id, prefs)
}

// AddPushToken adds token to the recipient's set if absent.
func (d *Directory) AddPushToken(ctx context.Context, id string, role domain.RecipientRole, token string) error {
	s, err := d.storeFor(role)
	if err != nil {
		return err
	}
	return s.AddPushToken(ctx, id, token)
}

// RemovePushTokens pulls every given token from the set; absent tokens are ignored.
func (d *Directory) RemovePushTokens(ctx context.Context, id string, role domain.RecipientRole, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	s, err := d.storeFor(role)
	if err != nil {
		return err
	}
	return s.RemovePushTokens(ctx, id, tokens)
}

type pgRecipientTable struct {
	pool  *pgxpool.Pool
	table string
	role  domain.RecipientRole
}

func (t *pgRecipientTable) Get(ctx context.Context, id string) (*domain.Recipient, error) {
	var (
		r        = domain.Recipient{ID: id, Role: t.role}
		rawPrefs []byte
	)
	err := t.pool.QueryRow(ctx,
		`SELECT name, email, push_tokens, notification_preferences FROM `+t.table+` WHERE id = $1`, id,
	).Scan(&r.Name, &r.Email, &r.PushTokens, &rawPrefs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrRecipientNotFound(string(t.role), id)
	}
	if err != nil {
		return nil, apperrors.ExternalServiceError(err, "load recipient")
	}
	if len(rawPrefs) > 0 {
		var prefs domain.NotificationPreferences
		if err := json.Unmarshal(rawPrefs, &prefs); err != nil {
			return nil, apperrors.ExternalServiceError(err, "decode notification preferences")
		}
		r.Preferences = &prefs
	}
	return &r, nil
}

func (t *pgRecipientTable) Upsert(ctx context.Context, r *domain.Recipient) error {
	var rawPrefs []byte
	if r.Preferences != nil {
		b, err := json.Marshal(r.Preferences)
		if err != nil {
			return fmt.Errorf("encode notification preferences: %w", err)
		}
		rawPrefs = b
	}
	tokens := r.PushTokens
	if tokens == nil {
		tokens = []string{}
	}
	_, err := t.pool.Exec(ctx, `
		INSERT INTO `+t.table+` (id, name, email, push_tokens, notification_preferences)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    push_tokens = EXCLUDED.push_tokens,
		    notification_preferences = EXCLUDED.notification_preferences`,
		r.ID, r.Name, r.Email, tokens, rawPrefs,
	)
	if err != nil {
		return apperrors.ExternalServiceError(err, "upsert recipient")
	}
	return nil
}

func (t *pgRecipientTable) UpdatePreferences(ctx context.Context, id string, prefs domain.NotificationPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode notification preferences: %w", err)
	}
	tag, err := t.pool.Exec(ctx,
		`UPDATE `+t.table+` SET notification_preferences = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return apperrors.ExternalServiceError(err, "update notification preferences")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRecipientNotFound(string(t.role), id)
	}
	return nil
}

func (t *pgRecipientTable) AddPushToken(ctx context.Context, id, token string) error {
	tag, err := t.pool.Exec(ctx, `
		UPDATE `+t.table+`
		SET push_tokens = CASE
			WHEN $2::text = ANY(push_tokens) THEN push_tokens
			ELSE array_append(push_tokens, $2::text)
		END
		WHERE id = $1`, id, token)
	if err != nil {
		return apperrors.ExternalServiceError(err, "add push token")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRecipientNotFound(string(t.role), id)
	}
	return nil
}

func (t *pgRecipientTable) RemovePushTokens(ctx context.Context, id string, tokens []string) error {
	tag, err := t.pool.Exec(ctx, `
		UPDATE `+t.table+`
		SET push_tokens = ARRAY(
			SELECT tok FROM unnest(push_tokens) AS tok WHERE tok <> ALL($2::text[])
		)
		WHERE id = $1`, id, tokens)
	if err != nil {
		return apperrors.ExternalServiceError(err, "remove push tokens")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRecipientNotFound(string(t.role), id)
	}
	return nil
}
