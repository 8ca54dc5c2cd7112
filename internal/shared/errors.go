package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies application errors.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindForbidden  ErrorKind = "forbidden"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindBusiness   ErrorKind = "business"
	KindDatabase   ErrorKind = "database"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change outside the allow-list.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTenantRequired is returned when a request carries no company.
	ErrTenantRequired = errors.New("company id required")
)

// AppError carries an HTTP status, a stable code and optional details.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

// Status maps the kind onto an HTTP status code.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation, KindBusiness:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy carrying details.
func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newAppError(kind ErrorKind, code, msg string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: msg, Err: err}
}

// Validation reports invalid input.
func Validation(msg string) *AppError {
	return newAppError(KindValidation, "VALIDATION_ERROR", msg, nil)
}

// Unauthorized reports a missing or invalid identity.
func Unauthorized(msg string) *AppError {
	return newAppError(KindAuth, "UNAUTHORIZED", msg, nil)
}

// Forbidden reports a missing permission.
func Forbidden(msg string) *AppError {
	return newAppError(KindForbidden, "FORBIDDEN", msg, nil)
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) *AppError {
	return newAppError(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s %v not found", entity, id), ErrNotFound)
}

// Missing reports a missing entity when the id is not at hand. err is kept
// in the chain next to ErrNotFound.
func Missing(entity string, err error) *AppError {
	return newAppError(KindNotFound, "NOT_FOUND", entity+" not found", errors.Join(ErrNotFound, err))
}

// Conflict reports a duplicate or concurrently modified resource.
func Conflict(msg string, err error) *AppError {
	return newAppError(KindConflict, "CONFLICT", msg, err)
}

// Business reports a rule violation on otherwise valid input.
func Business(code, msg string, err error) *AppError {
	return newAppError(KindBusiness, code, msg, err)
}

// Database wraps a storage failure; the message is never shown to clients.
func Database(op string, err error) *AppError {
	return newAppError(KindDatabase, "DATABASE_ERROR", op, err)
}

// BadTransition reports an illegal status change.
func BadTransition(entity string, from, to string) *AppError {
	return Business("INVALID_STATUS_TRANSITION", fmt.Sprintf("%s cannot move from %s to %s", entity, from, to), ErrInvalidTransition)
}

// AsAppError extracts an AppError from err.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	if appErr, ok := AsAppError(err); ok && appErr.Kind != KindDatabase {
		if appErr.Message != "" {
			return appErr.Message
		}
	}
	return "internal server error"
}
