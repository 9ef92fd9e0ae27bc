package model

import (
	"errors"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	err := NewNotFoundError("instance \"abc\" not found")
	want := `NOT_FOUND: instance "abc" not found`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewValidationError_details(t *testing.T) {
	err := NewValidationError(
		FieldError{Field: "name", Code: "required", Message: "name is required"},
		FieldError{Field: "type", Code: "invalid", Message: "unknown type"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q", err.Code)
	}
	if len(err.Details) != 2 {
		t.Fatalf("len(Details) = %d, want 2", len(err.Details))
	}
	if err.Details[0].Field != "name" {
		t.Errorf("Details[0].Field = %q", err.Details[0].Field)
	}
}

func TestIsCode(t *testing.T) {
	if !IsCode(NewConflictError("boom"), ErrConflict) {
		t.Error("IsCode(conflict, CONFLICT) = false")
	}
	if IsCode(NewConflictError("boom"), ErrNotFound) {
		t.Error("IsCode(conflict, NOT_FOUND) = true")
	}
	if IsCode(errors.New("plain"), ErrInternal) {
		t.Error("IsCode(plain error) = true")
	}
	if IsCode(nil, ErrInternal) {
		t.Error("IsCode(nil) = true")
	}
}
