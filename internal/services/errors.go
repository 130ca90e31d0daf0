package services

import (
	"errors"
	"strings"

	"github.com/samber/oops"

	"authapi/internal/validation"
)

// Client-correctable failures. Handlers switch on these with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountNotVerified  = errors.New("account not verified")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrTokenNotFound       = errors.New("invalid or expired token")
	ErrTokenExpired        = errors.New("token expired")
	ErrAlreadyVerified     = errors.New("email is already verified")
	ErrResetAlreadyPending = errors.New("reset already pending")
)

// Server-side failures; always wrapped with oops context.
var (
	ErrHashing      = errors.New("password hashing failed")
	ErrNotification = errors.New("notification delivery failed")
	ErrStore        = errors.New("user store failure")
)

// ValidationError carries field-level detail and matches ErrValidation.
type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErr(fields []validation.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func storeErr(op string, err error) error {
	return oops.Code("store_error").
		In("user-store").
		With("operation", op).
		Wrap(errors.Join(ErrStore, err))
}

func hashingErr(op string, err error) error {
	return oops.Code("hashing_error").
		In("credential-hasher").
		With("operation", op).
		Wrap(errors.Join(ErrHashing, err))
}

func notificationErr(kind string, err error) error {
	return oops.Code("notification_error").
		In("notifier").
		With("kind", kind).
		Wrap(errors.Join(ErrNotification, err))
}

// tokenErr reports a failure of the random source as ErrHashing.
func tokenErr(err error) error {
	return oops.Code("token_error").
		In("token-generator").
		Wrap(errors.Join(ErrHashing, err))
}
