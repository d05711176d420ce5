package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindNotFound               Kind = "NOT_FOUND"
	KindSchedulingConflict     Kind = "SCHEDULING_CONFLICT"
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindAuthentication         Kind = "AUTHENTICATION_ERROR"
	KindAuthorization          Kind = "AUTHORIZATION_ERROR"
	KindPersistence            Kind = "PERSISTENCE_ERROR"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same kind, so errors.Is(err, ErrNotFound) works
// against sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// StatusCode maps the kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindSchedulingConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidStateTransition:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the operation unchanged.
func (e *AppError) Retryable() bool {
	return e.Kind == KindPersistence
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation             = &AppError{Kind: KindValidation}
	ErrNotFound               = &AppError{Kind: KindNotFound}
	ErrSchedulingConflict     = &AppError{Kind: KindSchedulingConflict}
	ErrInvalidStateTransition = &AppError{Kind: KindInvalidStateTransition}
	ErrAuthentication         = &AppError{Kind: KindAuthentication}
	ErrAuthorization          = &AppError{Kind: KindAuthorization}
	ErrPersistence            = &AppError{Kind: KindPersistence}
)

// Error constructors
func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...interface{}) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

func NotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func SchedulingConflict(message string) *AppError {
	return &AppError{Kind: KindSchedulingConflict, Message: message}
}

func InvalidStateTransition(from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func Authentication(message string) *AppError {
	return &AppError{Kind: KindAuthentication, Message: message}
}

func Authorization(message string) *AppError {
	return &AppError{Kind: KindAuthorization, Message: message}
}

func Persistence(op string, err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: fmt.Sprintf("%s failed", op), Err: err}
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindPersistence for anything unclassified.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Kind == kind
}

// As exposes errors.As so callers need only one errors import.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is exposes errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// New exposes errors.New.
func New(text string) error {
	return stderrors.New(text)
}
