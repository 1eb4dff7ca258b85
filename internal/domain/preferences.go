package domain

// NotificationPreferences are a recipient's channel and category toggles.
// Updates replace the whole document.
type NotificationPreferences struct {
	Email bool              `json:"email"`
	Push  bool              `json:"push"`
	SMS   bool              `json:"sms"`
	Types map[Category]bool `json:"types,omitempty"`
}

// DefaultPreferences applies to recipients that never saved preferences.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		Email: true,
		Push:  true,
		SMS:   false,
		Types: map[Category]bool{},
	}
}

// CategoryEnabled falls back to true for absent keys, except PROMOTIONAL
// which is opt-in.
func (p NotificationPreferences) CategoryEnabled(c Category) bool {
	if enabled, ok := p.Types[c]; ok {
		return enabled
	}
	return c != CategoryPromotional
}

// ChannelEnabled reports the global toggle for ch. Realtime has no toggle.
func (p NotificationPreferences) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return p.Push
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.SMS
	case ChannelRealtime:
		return true
	}
	return false
}

// Allows reports whether a notification of category c may go out on ch.
// Realtime is never gated.
func (p NotificationPreferences) Allows(ch Channel, c Category) bool {
	if ch == ChannelRealtime {
		return true
	}
	return p.ChannelEnabled(ch) && p.CategoryEnabled(c)
}

// EligibleChannels returns the channels allowed for c, in DispatchOrder.
func (p NotificationPreferences) EligibleChannels(c Category) []Channel {
	out := make([]Channel, 0, len(DispatchOrder))
	for _, ch := range DispatchOrder {
		if p.Allows(ch, c) {
			out = append(out, ch)
		}
	}
	return out
}
