package errors

import "net/http"

// Error code constants.
// Clients key off codes; messages are for operators and logs.

// Notification error codes.
const (
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodeNotificationInvalid  = "NOTIFICATION_INVALID"
)

// Recipient error codes.
const (
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	CodeInvalidRole       = "INVALID_RECIPIENT_ROLE"
	CodeInvalidCategory   = "INVALID_CATEGORY"
)

// Channel error codes.
const (
	CodeChannelNotImplemented = "CHANNEL_NOT_IMPLEMENTED"
	CodePushBatchFailed       = "PUSH_BATCH_FAILED"
)

// Queue error codes.
const (
	CodeQueueNotFound       = "QUEUE_NOT_FOUND"
	CodeQueueNotInitialized = "QUEUE_NOT_INITIALIZED"
	CodeJobPayloadInvalid   = "JOB_PAYLOAD_INVALID"
)

// Infrastructure error codes.
const (
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// Auth error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeForbidden    = "FORBIDDEN"
)

// Validation error codes.
const (
	CodeInvalidID        = "INVALID_ID"
	CodeValidationFailed = "VALIDATION_FAILED"
)

// Convenience constructors using predefined codes.

// ErrNotificationNotFound is returned when a notification is missing or not owned by the caller.
func ErrNotificationNotFound(id string) *AppError {
	return NotFoundError(CodeNotificationNotFound, "notification not found").
		WithParams(map[string]interface{}{"notification_id": id})
}

// ErrRecipientNotFound is returned when the recipient row no longer exists.
func ErrRecipientNotFound(role, id string) *AppError {
	return NotFoundError(CodeRecipientNotFound, "recipient not found").
		WithParams(map[string]interface{}{"recipient_role": role, "recipient_id": id})
}

// ErrInvalidRole is returned for a role outside the closed recipient role set.
func ErrInvalidRole(role string) *AppError {
	return BusinessLogicError(CodeInvalidRole, "invalid recipient role: "+role)
}

// ErrChannelNotImplemented is returned by placeholder channels.
func ErrChannelNotImplemented(channel string) *AppError {
	return BusinessLogicError(CodeChannelNotImplemented, channel+" channel is not implemented")
}

// ErrInvalidID creates a 400 for malformed identifiers.
func ErrInvalidID(field string) *AppError {
	return &AppError{
		Kind:       KindValidation,
		Code:       CodeInvalidID,
		Message:    "malformed identifier: " + field,
		HTTPStatus: http.StatusBadRequest,
	}
}
