package notification

import (
	"context"

	"givedesk.io/backoffice/internal/domain"
)

// PreferenceResolver returns the preferences that govern delivery to a
// recipient.
type PreferenceResolver struct {
	recipients RecipientResolver
}

// NewPreferenceResolver creates a resolver over the recipient directory.
func NewPreferenceResolver(recipients RecipientResolver) *PreferenceResolver {
	return &PreferenceResolver{recipients: recipients}
}

// Resolve returns saved preferences, or the defaults when the recipient
// never saved any. A missing recipient is a NotFound error.
func (r *PreferenceResolver) Resolve(ctx context.Context, id string, role domain.RecipientRole) (domain.NotificationPreferences, error) {
	rec, err := r.recipients.Resolve(ctx, id, role)
	if err != nil {
		return domain.NotificationPreferences{}, err
	}
	return rec.EffectivePreferences(), nil
}
