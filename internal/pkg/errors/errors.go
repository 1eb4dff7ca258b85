// Package errors provides the application error taxonomy.
//
// Every error that crosses a package boundary is either a plain wrapped error
// or an *AppError carrying a Kind. The queue workers consult IsRetryable to
// decide between resubmission and terminal failure.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError for retry and HTTP mapping.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindBusinessLogic       Kind = "BUSINESS_LOGIC"
	KindExternalService     Kind = "EXTERNAL_SERVICE"
	KindPushNotification    Kind = "PUSH_NOTIFICATION"
	KindQueueNotFound       Kind = "QUEUE_NOT_FOUND"
	KindQueueNotInitialized Kind = "QUEUE_NOT_INITIALIZED"
	KindValidation          Kind = "VALIDATION"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindInternal            Kind = "INTERNAL"
)

// Retryable reports whether a failure of this kind may succeed on resubmission.
func (k Kind) Retryable() bool {
	switch k {
	case KindExternalService, KindPushNotification, KindInternal:
		return true
	default:
		return false
	}
}

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Kind is the taxonomy tag used for retry decisions.
	Kind Kind `json:"-"`

	// Code is a machine-readable error code (e.g., "NOTIFICATION_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context for clients.
	Params map[string]interface{} `json:"params,omitempty"`

	// FieldErrors carries field-level validation details for form binding.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError of the given kind.
func New(kind Kind, code, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, kind Kind, code, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// WithFieldErrors attaches field-level errors to the AppError.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// PushNotificationError reports a push gateway failure for a whole batch.
// Batch holds the tokens that were in flight.
type PushNotificationError struct {
	Batch []string
	Err   error
}

func (e *PushNotificationError) Error() string {
	return fmt.Sprintf("%s: push gateway rejected batch of %d tokens: %v", CodePushBatchFailed, len(e.Batch), e.Err)
}

func (e *PushNotificationError) Unwrap() error {
	return e.Err
}

// NewPushNotificationError copies batch so later mutation by the caller does not leak in.
func NewPushNotificationError(batch []string, err error) *PushNotificationError {
	return &PushNotificationError{
		Batch: append([]string(nil), batch...),
		Err:   err,
	}
}

// Taxonomy constructors.

// NotFoundError creates a 404 error for a missing recipient, notification or entity.
func NotFoundError(code, message string) *AppError {
	return New(KindNotFound, code, message, http.StatusNotFound)
}

// BusinessLogicError creates a terminal error for invalid roles or unsupported operations.
func BusinessLogicError(code, message string) *AppError {
	return New(KindBusinessLogic, code, message, http.StatusUnprocessableEntity)
}

// ExternalServiceError wraps a store or downstream failure. Retryable.
func ExternalServiceError(err error, message string) *AppError {
	return Wrap(err, KindExternalService, CodeExternalService, message, http.StatusBadGateway)
}

// QueueNotFoundError reports an unknown queue name.
func QueueNotFoundError(name string) *AppError {
	return New(KindQueueNotFound, CodeQueueNotFound, "queue not found: "+name, http.StatusNotFound).
		WithParams(map[string]interface{}{"queue": name})
}

// QueueNotInitializedError reports use of the broker before Initialize.
func QueueNotInitializedError(name string) *AppError {
	return New(KindQueueNotInitialized, CodeQueueNotInitialized, "queue broker not initialized", http.StatusServiceUnavailable).
		WithParams(map[string]interface{}{"queue": name})
}

// ValidationError creates a 400 error.
func ValidationError(code, message string) *AppError {
	return New(KindValidation, code, message, http.StatusBadRequest)
}

// Unauthorized creates a 401 error.
func Unauthorized(code, message string) *AppError {
	return New(KindUnauthorized, code, message, http.StatusUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *AppError {
	return New(KindForbidden, code, message, http.StatusForbidden)
}

// Internal creates a 500 error.
func Internal(code, message string) *AppError {
	return New(KindInternal, code, message, http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err. Push batch failures report
// KindPushNotification; untyped errors report KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pushErr *PushNotificationError
	if errors.As(err, &pushErr) {
		return KindPushNotification
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRetryable reports whether a worker should resubmit the job that produced err.
// Untyped errors are assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}
