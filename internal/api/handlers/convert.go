package handlers

import (
	"net/http"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/store"
)

// listQuery binds GET /notifications query parameters.
type listQuery struct {
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PerPage    int  `form:"per_page" binding:"omitempty,min=1,max=100"`
	UnreadOnly bool `form:"unread_only"`
}

func (q listQuery) filter() store.ListFilter {
	return store.ListFilter{UnreadOnly: q.UnreadOnly, Page: q.Page, PerPage: q.PerPage}
}

// preferencesBody is the whole-document preferences update. Pointers make a
// missing toggle distinguishable from false.
type preferencesBody struct {
	Email *bool                    `json:"email" binding:"required"`
	Push  *bool                    `json:"push" binding:"required"`
	SMS   *bool                    `json:"sms" binding:"required"`
	Types map[domain.Category]bool `json:"types"`
}

func (b preferencesBody) toDomain() (domain.NotificationPreferences, error) {
	var fieldErrors []apperrors.FieldError
	for c := range b.Types {
		if !c.Valid() {
			fieldErrors = append(fieldErrors, apperrors.FieldError{
				Field: "types." + string(c), Code: apperrors.CodeInvalidCategory,
			})
		}
	}
	if len(fieldErrors) > 0 {
		return domain.NotificationPreferences{}, apperrors.
			ValidationError(apperrors.CodeValidationFailed, "invalid preferences").
			WithFieldErrors(fieldErrors)
	}
	types := b.Types
	if types == nil {
		types = map[domain.Category]bool{}
	}
	return domain.NotificationPreferences{Email: *b.Email, Push: *b.Push, SMS: *b.SMS, Types: types}, nil
}

type deviceBody struct {
	Token string `json:"token" binding:"required"`
}

// bindError converts a gin binding failure into a 400.
func bindError(err error) *apperrors.AppError {
	return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeValidationFailed,
		"invalid request: "+err.Error(), http.StatusBadRequest)
}
