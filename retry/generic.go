package retry

import "context"

// DoWithResultTyped is a type-safe generic wrapper around Retryer.DoWithResult.
// An absorbed failure yields the zero value of T with a nil error.
//
// Usage:
//
//	val, out, err := retry.DoWithResultTyped[string](r, ctx, func() (string, error) {
//	    return crew.Kickoff(ctx, inputs)
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, *Outcome, error) {
	result, out, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	var zero T
	if err != nil || result == nil {
		return zero, out, err
	}
	return result.(T), out, nil
}
