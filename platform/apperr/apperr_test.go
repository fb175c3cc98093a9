package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("lead"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{BadRequest("bad"), http.StatusBadRequest},
		{Conflict("busy"), http.StatusConflict},
		{Unauthorized("who"), http.StatusUnauthorized},
		{External("smtp", errors.New("down")), http.StatusBadGateway},
		{Internal("oops"), http.StatusInternalServerError},
		{Config("DATABASE_URL is required"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("%s: status %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("startup: %w", Config("FROM_EMAIL is required").WithOp("config.Validate"))
	if !Is(err, KindConfig) {
		t.Fatalf("expected config kind through wrapping, got %v", GetKind(err))
	}
	if err.Error() != "startup: config.Validate: FROM_EMAIL is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected unknown kind for untyped errors")
	}
}
