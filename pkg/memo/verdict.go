package memo

import (
	"context"
	"errors"
	"fmt"
)

// Verdict says whether a freshly produced value may be written to the store.
// The zero value is No, so a producer that forgets to set it never pins a result.
type Verdict int

const (
	// No keeps the value out of the store. It will be produced again next time.
	No Verdict = iota
	// Yes lets the value be stored and reused.
	Yes
)

func (v Verdict) String() string {
	if v == Yes {
		return "yes"
	}
	return "no"
}

// ErrUncacheable marks a result that is usable now but must not be stored.
var ErrUncacheable = errors.New("result must not be cached")

// Uncacheable wraps err so that Fallible producers withhold the value from the
// store while still handing it to the caller.
func Uncacheable(err error) error {
	if err == nil {
		return ErrUncacheable
	}
	return fmt.Errorf("%w: %w", ErrUncacheable, err)
}

// Producer computes the value for a key together with its verdict.
// A non-nil error always counts as No, whatever verdict is returned.
type Producer[K comparable, V any] func(ctx context.Context, key K) (V, Verdict, error)

// Fallible adapts a plain fallible function into a Producer: success is Yes,
// an ErrUncacheable-wrapped error is a usable value with No, any other error fails.
func Fallible[K comparable, V any](fn func(ctx context.Context, key K) (V, error)) Producer[K, V] {
	return func(ctx context.Context, key K) (V, Verdict, error) {
		value, err := fn(ctx, key)
		switch {
		case err == nil:
			return value, Yes, nil
		case errors.Is(err, ErrUncacheable):
			return value, No, nil
		default:
			return value, No, err
		}
	}
}
