package model

import "fmt"

// Standard error codes.
const (
	ErrValidation     = "VALIDATION_ERROR"
	ErrNotFound       = "NOT_FOUND"
	ErrInvalidState   = "INVALID_STATE"
	ErrRetryExhausted = "RETRY_EXHAUSTED"
	ErrConflict       = "CONFLICT"
	ErrPersistence    = "PERSISTENCE_ERROR"
	ErrInternal       = "INTERNAL_ERROR"
)

// ErrorEnvelope is the standard error shape surfaced by every core operation.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
// Validation failures are rejected before any state mutation.
func NewValidationError(details ...FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidation,
		Message: "one or more fields are missing or invalid",
		Details: details,
	}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewInvalidStateError returns an INVALID_STATE error, raised when an
// operation is not legal from the entity's current status.
func NewInvalidStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidState, Message: msg}
}

// NewRetryExhaustedError returns a RETRY_EXHAUSTED error.
func NewRetryExhaustedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRetryExhausted, Message: msg}
}

// NewConflictError returns a CONFLICT error, raised on optimistic-lock
// version mismatches and duplicate identities.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewPersistenceError returns a PERSISTENCE_ERROR wrapping a store failure.
// The triggering operation is considered not to have happened.
func NewPersistenceError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrPersistence, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInternal, Message: "an unexpected error occurred"}
}

// IsCode reports whether err is an ErrorEnvelope carrying the given code.
func IsCode(err error, code string) bool {
	ee, ok := err.(*ErrorEnvelope)
	return ok && ee.Code == code
}
