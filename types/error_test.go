package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("gemini")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WrappedLookups(t *testing.T) {
	t.Parallel()

	inner := NewTransient(errors.New("timeout"), "search call failed")
	wrapped := fmt.Errorf("task retrieve_news: %w", inner)

	if !IsRetryable(wrapped) {
		t.Fatalf("expected wrapped transient error to be retryable")
	}
	if GetErrorCode(wrapped) != ErrTransientOperation {
		t.Fatalf("expected %s, got %s", ErrTransientOperation, GetErrorCode(wrapped))
	}
}

func TestError_ExhaustedCarriesCause(t *testing.T) {
	t.Parallel()

	last := NewTransient(errors.New("503"), "kickoff failed")
	err := NewExhaustedRetry(3, last)

	if err.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", err.Attempts)
	}
	if GetErrorCode(err) != ErrExhaustedRetry {
		t.Fatalf("expected outer code %s", ErrExhaustedRetry)
	}
	if !IsCode(err, ErrTransientOperation) {
		t.Fatalf("expected IsCode to find the transient cause")
	}
	if IsRetryable(err) {
		t.Fatalf("exhausted errors must not be retryable")
	}
}

func TestError_IsFatal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err   error
		fatal bool
	}{
		{NewGraphInvalid("cycle through %s", "a"), true},
		{NewConfiguration("agent %q not found", "x"), true},
		{NewDependencyNotMet("task %q not complete", "a"), true},
		{NewTransient(nil, "flaky"), false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := IsFatal(c.err); got != c.fatal {
			t.Errorf("IsFatal(%v) = %v, want %v", c.err, got, c.fatal)
		}
	}
}
