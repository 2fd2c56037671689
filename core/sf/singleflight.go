package sf

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Singleflight deduplicates concurrent function calls with the same key.
// Only the first caller executes the function; others wait and receive
// the same result.
type Singleflight[T any] struct {
	group singleflight.Group
}

// Do executes fn for the given key, deduplicating concurrent calls.
// shared reports whether the result was handed to more than one caller.
func (s *Singleflight[T]) Do(key string, fn func() (T, error)) (out T, shared bool, err error) {
	v, err, shared := s.group.Do(key, func() (any, error) {
		return fn()
	})
	if v != nil {
		out = v.(T)
	}
	return out, shared, err
}

// DoContext is Do that stops waiting when ctx is done. The in-flight call
// keeps running for the callers still waiting on it.
func (s *Singleflight[T]) DoContext(ctx context.Context, key string, fn func() (T, error)) (out T, shared bool, err error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		return out, false, ctx.Err()
	case res := <-ch:
		if res.Val != nil {
			out = res.Val.(T)
		}
		return out, res.Shared, res.Err
	}
}

// Forget drops key so the next call executes fn again.
func (s *Singleflight[T]) Forget(key string) { s.group.Forget(key) }

// New creates a new Singleflight instance for type T.
func New[T any]() *Singleflight[T] {
	return &Singleflight[T]{}
}
