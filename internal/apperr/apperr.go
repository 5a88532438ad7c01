// Package apperr defines the error taxonomy shared by the RFID components and
// their transports.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyEnrolled   = errors.New("tag is already enrolled to an inventory item")
	ErrItemAlreadyTagged = errors.New("inventory item already has an rfid tag")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Issue is a field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed payload.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Field, is.Message))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Invalid builds a ValidationError with a single field issue.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{
		Message: "invalid payload",
		Issues:  []Issue{{Field: field, Message: message}},
	}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
