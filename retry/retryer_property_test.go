package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// Feature: bounded retry, Property: an operation failing k times before
// succeeding is attempted min(k+1, max) times with one delay between each pair.
func TestProperty_RetryAttemptsAndDelays(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxAttempts := rapid.IntRange(1, 8).Draw(rt, "maxAttempts")
		failures := rapid.IntRange(0, 10).Draw(rt, "failures")
		delay := time.Duration(rapid.IntRange(0, 1000).Draw(rt, "delayMs")) * time.Millisecond
		absorb := rapid.Bool().Draw(rt, "absorb")

		policy := Attempts(maxAttempts, delay)
		if absorb {
			policy = policy.BestEffort()
		}
		s := &recordingSleeper{}
		r := NewRetryer(policy, zap.NewNop(), WithSleeper(s.sleep))

		calls := 0
		out, err := r.Do(context.Background(), func() error {
			calls++
			if calls <= failures {
				return errors.New("fail")
			}
			return nil
		})

		expected := failures + 1
		if expected > maxAttempts {
			expected = maxAttempts
		}
		if calls != expected || out.Attempts != expected {
			rt.Fatalf("expected %d attempts, got calls=%d outcome=%d", expected, calls, out.Attempts)
		}
		if len(s.waits) != expected-1 {
			rt.Fatalf("expected %d delays, got %d", expected-1, len(s.waits))
		}
		for _, w := range s.waits {
			if w != delay {
				rt.Fatalf("expected delay %s, got %s", delay, w)
			}
		}

		succeeded := failures < maxAttempts
		switch {
		case succeeded && (err != nil || out.Status != StatusSucceeded):
			rt.Fatalf("expected success, got status=%s err=%v", out.Status, err)
		case !succeeded && absorb && (err != nil || out.Status != StatusAbsorbed):
			rt.Fatalf("expected absorbed, got status=%s err=%v", out.Status, err)
		case !succeeded && !absorb && (err == nil || out.Status != StatusFailed):
			rt.Fatalf("expected propagated failure, got status=%s err=%v", out.Status, err)
		}
	})
}
