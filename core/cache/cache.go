package cache

import "time"

// Cache stores values by key. Implementations may drop entries at any time,
// so a miss never means the value does not exist elsewhere.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any, opts ...PutOption)
	Delete(key string)
}

// PutOptions are collected from the PutOption list of a single Put.
type PutOptions struct {
	// TTL expires the entry after the duration. Zero keeps it until evicted.
	TTL time.Duration
}

type PutOption func(*PutOptions)

func WithTTL(ttl time.Duration) PutOption { return func(o *PutOptions) { o.TTL = ttl } }

func collectPutOptions(opts []PutOption) PutOptions {
	var po PutOptions
	for _, opt := range opts {
		opt(&po)
	}
	return po
}

// Typed narrows a Cache to values of one type. A stored value of another
// type reads as a miss.
type Typed[T any] struct{ c Cache }

func NewTyped[T any](c Cache) Typed[T] { return Typed[T]{c: c} }

func (t Typed[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.c.Get(key)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	if !ok {
		return zero, false
	}
	return out, true
}

func (t Typed[T]) Put(key string, val T, opts ...PutOption) { t.c.Put(key, val, opts...) }
func (t Typed[T]) Delete(key string)                        { t.c.Delete(key) }

// Nop is a Cache that keeps nothing. It disables state caching in the
// command handler.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) Get(string) (any, bool)        { return nil, false }
func (Nop) Put(string, any, ...PutOption) {}
func (Nop) Delete(string)                 {}

var _ Cache = Nop{}
