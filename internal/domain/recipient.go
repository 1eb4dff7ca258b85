package domain

// Recipient is the subset of a participant profile the engine needs.
type Recipient struct {
	ID         string        `json:"id"`
	Role       RecipientRole `json:"role"`
	Name       string        `json:"name,omitempty"`
	Email      string        `json:"email,omitempty"`
	PushTokens []string      `json:"push_tokens"`
	// Preferences is nil when the recipient never saved any.
	Preferences *NotificationPreferences `json:"preferences,omitempty"`
}

// EffectivePreferences returns saved preferences or the defaults.
func (r *Recipient) EffectivePreferences() NotificationPreferences {
	if r == nil || r.Preferences == nil {
		return DefaultPreferences()
	}
	return *r.Preferences
}
