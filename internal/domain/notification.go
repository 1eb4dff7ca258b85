// Package domain defines the notification engine's core types.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// RecipientRole is the closed set of participant kinds that can receive notifications.
type RecipientRole string

const (
	RoleAdmin       RecipientRole = "ADMIN"
	RoleStaff       RecipientRole = "STAFF"
	RoleContributor RecipientRole = "CONTRIBUTOR"
	RoleBeneficiary RecipientRole = "BENEFICIARY"
)

// RecipientRoles lists every role in a stable order.
var RecipientRoles = []RecipientRole{RoleAdmin, RoleStaff, RoleContributor, RoleBeneficiary}

// Valid reports whether r is a known role.
func (r RecipientRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleContributor, RoleBeneficiary:
		return true
	}
	return false
}

// ParseRecipientRole returns a BusinessLogic error for unknown roles.
func ParseRecipientRole(s string) (RecipientRole, error) {
	r := RecipientRole(s)
	if !r.Valid() {
		return "", apperrors.ErrInvalidRole(s)
	}
	return r, nil
}

// Category classifies notification content for preference filtering.
type Category string

const (
	CategoryDonation    Category = "DONATION"
	CategoryPledge      Category = "PLEDGE"
	CategoryHearing     Category = "HEARING"
	CategoryPayment     Category = "PAYMENT"
	CategorySystem      Category = "SYSTEM"
	CategoryPromotional Category = "PROMOTIONAL"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryDonation, CategoryPledge, CategoryHearing,
	CategoryPayment, CategorySystem, CategoryPromotional,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Channel is a delivery mechanism.
type Channel string

const (
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelRealtime Channel = "realtime"
)

// DispatchOrder is the fixed order in which channels are attempted.
var DispatchOrder = []Channel{ChannelPush, ChannelEmail, ChannelSMS, ChannelRealtime}

// Status is the delivery lifecycle of a notification record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// NotificationRecord is one persisted notification. Identity, content and
// category are immutable after Create; only Status and Read change.
type NotificationRecord struct {
	ID            uuid.UUID              `json:"id"`
	RecipientID   string                 `json:"recipient_id"`
	RecipientRole RecipientRole          `json:"recipient_role"`
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Category      Category               `json:"category"`
	Channel       Channel                `json:"channel,omitempty"`
	Status        Status                 `json:"status"`
	Read          bool                   `json:"read"`
	ReadAt        *time.Time             `json:"read_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	SentAt        *time.Time             `json:"sent_at,omitempty"`
}

// NewNotification is the input of the creation path.
type NewNotification struct {
	RecipientID   string                 `json:"recipient_id"`
	RecipientRole RecipientRole          `json:"recipient_role"`
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Category      Category               `json:"category"`
	Channel       Channel                `json:"channel,omitempty"`
}

// Validate checks the fields a record cannot be persisted without.
func (n NewNotification) Validate() error {
	if n.RecipientID == "" {
		return apperrors.ValidationError(apperrors.CodeNotificationInvalid, "recipient_id is required")
	}
	if !n.RecipientRole.Valid() {
		return apperrors.ErrInvalidRole(string(n.RecipientRole))
	}
	if !n.Category.Valid() {
		return apperrors.BusinessLogicError(apperrors.CodeInvalidCategory, "invalid category: "+string(n.Category))
	}
	if n.Title == "" {
		return apperrors.ValidationError(apperrors.CodeNotificationInvalid, "title is required")
	}
	return nil
}

// Record builds a PENDING record with a fresh id.
func (n NewNotification) Record(now time.Time) *NotificationRecord {
	return &NotificationRecord{
		ID:            uuid.New(),
		RecipientID:   n.RecipientID,
		RecipientRole: n.RecipientRole,
		Title:         n.Title,
		Body:          n.Body,
		Payload:       n.Payload,
		Category:      n.Category,
		Channel:       n.Channel,
		Status:        StatusPending,
		CreatedAt:     now.UTC(),
	}
}
