package app

import (
	"errors"
	"fmt"
	"net/http"

	"compliance/api/internal/auth"
	"compliance/api/internal/export"
	"compliance/api/internal/session"
	"compliance/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *workflow.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Message, map[string]any{"field": validationErr.Field}
	}
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", "This item can no longer be moved to that status", nil
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, workflow.ErrForbidden),
		errors.Is(err, export.ErrNotPermitted),
		errors.Is(err, session.ErrTabNotAllowed):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email address. Please try again.", nil
	case errors.Is(err, session.ErrAccountDisabled):
		return http.StatusForbidden, "ACCOUNT_DISABLED", "This account has been disabled. Contact your administrator.", nil
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, "SESSION_NOT_ACTIVE", "Session is not active yet", nil
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, session.ErrTokenNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be 'pdf', 'docx' or 'html'", nil
	case errors.Is(err, export.ErrPDFDependencyMissing),
		errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
