package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("prioritize: %w", BusinessRule("ticket is already first"))
	if KindOf(err) != KindBusinessRule {
		t.Fatalf("expected business rule, got %s", KindOf(err))
	}
	if HTTPStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", HTTPStatus(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors must be internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{BusinessRule("rule"), http.StatusUnprocessableEntity},
		{Internal("db", errors.New("down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestInternal_KeepsClassifiedErrors(t *testing.T) {
	nf := NotFound("appointment not found")
	if got := Internal("set status", nf); got != nf {
		t.Fatalf("expected classified error to pass through, got %v", got)
	}
}

func TestPublicMessage(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:3306: connection refused")
	err := Internal("failed to complete reception", cause)

	if got := PublicMessage(err, false); got != "failed to complete reception" {
		t.Errorf("production message leaked detail: %q", got)
	}
	if got := PublicMessage(err, true); got != "failed to complete reception: "+cause.Error() {
		t.Errorf("unexpected debug message %q", got)
	}
	if got := PublicMessage(Validation("date is required"), false); got != "date is required" {
		t.Errorf("unexpected validation message %q", got)
	}
	if got := PublicMessage(cause, false); got != "internal error" {
		t.Errorf("unexpected message for unclassified error %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestMap(t *testing.T) {
	sentinel := errors.New("record not found")
	wrapped := fmt.Errorf("get queue 7: %w", sentinel)

	err := Map(wrapped, sentinel, KindNotFound, "queue ticket not found")
	if !Is(err, KindNotFound) || !errors.Is(err, sentinel) {
		t.Fatalf("expected classified not found keeping the cause, got %v", err)
	}
	if got := PublicMessage(err, false); got != "queue ticket not found" {
		t.Errorf("cause leaked into public message: %q", got)
	}

	other := errors.New("timeout")
	if Map(other, sentinel, KindNotFound, "x") != other {
		t.Error("non-matching errors must pass through")
	}
	if Map(nil, sentinel, KindNotFound, "x") != nil {
		t.Error("nil must stay nil")
	}
}
