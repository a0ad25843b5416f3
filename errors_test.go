package authcore

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore/internal/flows"
)

func TestMaskedErrorsMatchPublicSentinel(t *testing.T) {
	tests := []struct {
		masked error
		public error
	}{
		{ErrAccountLockedOut, ErrInvalidCredentials},
		{ErrRefreshTheftDetected, ErrRefreshInvalid},
	}
	for _, tc := range tests {
		if !errors.Is(tc.masked, tc.public) {
			t.Fatalf("%v should match %v", tc.masked, tc.public)
		}
		if tc.masked.Error() != tc.public.Error() {
			t.Fatalf("masked message %q differs from %q", tc.masked.Error(), tc.public.Error())
		}
		if errors.Is(tc.public, tc.masked) {
			t.Fatalf("%v must not match the masked error", tc.public)
		}
	}

	var m *maskedError
	if !errors.As(ErrAccountLockedOut, &m) || m.Reason() != "account locked out" {
		t.Fatalf("unexpected reason: %v", m)
	}
}

func TestPublicErrorMapsFlowKinds(t *testing.T) {
	for kind, want := range failureErrors {
		got := publicError(&flows.Error{Kind: kind, Err: errors.New("detail")})
		if got != want {
			t.Fatalf("kind %s: got %v, want %v", kind, got, want)
		}
	}
	if publicError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestPublicErrorWrapsBackendCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	for _, err := range []error{
		&flows.Error{Kind: flows.FailureBackend, Err: cause},
		fmt.Errorf("store: %w", cause),
	} {
		got := publicError(err)
		if !errors.Is(got, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", got)
		}
		if !strings.Contains(got.Error(), "connection refused") {
			t.Fatalf("expected cause in message, got %q", got.Error())
		}
		if errors.Is(got, cause) {
			t.Fatal("backend cause must not be matchable")
		}
	}
}
