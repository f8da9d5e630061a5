package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestServiceErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want int
	}{
		{"bad request", BadRequest("x"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized},
		{"invalid token", InvalidToken(nil), http.StatusUnauthorized},
		{"forbidden", Forbidden("x"), http.StatusForbidden},
		{"not found", NotFound("invoice", "1"), http.StatusNotFound},
		{"validation", Validation("customer", "required"), http.StatusUnprocessableEntity},
		{"upstream", Upstream("x", nil), http.StatusBadGateway},
		{"rate limited", RateLimitExceeded(10, "1s"), http.StatusTooManyRequests},
		{"internal", Internal("x", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.want {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.want)
			}
		})
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Upstream("insert invoice", cause)
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestWithDetails(t *testing.T) {
	err := Validation("lines[2].product", "product is required").WithDetails("line", 2)
	if err.Details["field"] != "lines[2].product" {
		t.Errorf("field detail = %v", err.Details["field"])
	}
	if err.Details["line"] != 2 {
		t.Errorf("line detail = %v", err.Details["line"])
	}
}
