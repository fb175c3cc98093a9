package validator

import (
	"errors"
	"testing"
)

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=5"`
}

func TestFieldErrorsUseJSONNames(t *testing.T) {
	err := New().Struct(sample{Email: "nope", Name: "toolongname"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	fields := FieldErrors(err)
	if fields["email"] != "email" || fields["name"] != "max=5" {
		t.Fatalf("unexpected field errors %v", fields)
	}
	if FieldErrors(errors.New("plain")) != nil {
		t.Fatalf("expected nil for non-validation errors")
	}
}
