package es

import "encoding/json"

// Maybe holds either no value or exactly one value of T.
// Aggregate states that may not exist yet use Maybe instead of nil pointers.
type Maybe[T any] struct {
	v  T
	ok bool
}

func None[T any]() Maybe[T]    { return Maybe[T]{} }
func Some[T any](v T) Maybe[T] { return Maybe[T]{v: v, ok: true} }

func (m Maybe[T]) Get() (T, bool) { return m.v, m.ok }
func (m Maybe[T]) IsSome() bool   { return m.ok }
func (m Maybe[T]) IsNone() bool   { return !m.ok }

// OrElse returns the held value or def.
func (m Maybe[T]) OrElse(def T) T {
	if m.ok {
		return m.v
	}
	return def
}

// MarshalJSON encodes None as null.
func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return []byte("null"), nil
	}
	return json.Marshal(m.v)
}

func (m *Maybe[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}
