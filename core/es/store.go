package es

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// EnvelopeStore is the raw contract implemented by storage backends.
	//
	// Append checks expected against the current head of stream, assigns
	// consecutive versions starting at head+1 and persists envs atomically.
	// On mismatch it returns a *ConflictError and leaves the log unchanged.
	// Read returns the events of stream within rng in ascending version order;
	// an unknown stream yields an empty result and no error.
	EnvelopeStore interface {
		Append(ctx context.Context, stream StreamID, expected ExpectedVersion, envs []Envelope) ([]Envelope, error)
		Read(ctx context.Context, stream StreamID, rng ReadRange) ([]Envelope, error)
	}

	// EventStore is the typed contract the command pipeline and projector use.
	EventStore[E, M any] interface {
		Append(ctx context.Context, stream StreamID, expected ExpectedVersion, events []Event[E, M]) ([]EventRead[E, M], error)
		Read(ctx context.Context, stream StreamID, rng ReadRange) ([]EventRead[E, M], error)
	}
)

// typedStore encodes events into envelopes and decodes them back through a registry.
type typedStore[E, M any] struct {
	backend  EnvelopeStore
	registry *EventRegistry
	now      func() time.Time
}

// NewEventStore adapts backend into an EventStore for payload type E and
// metadata type M. Every payload type must be registered with registry.
func NewEventStore[E, M any](backend EnvelopeStore, registry *EventRegistry) EventStore[E, M] {
	return &typedStore[E, M]{backend: backend, registry: registry, now: time.Now}
}

func (s *typedStore[E, M]) Append(
	ctx context.Context,
	stream StreamID,
	expected ExpectedVersion,
	events []Event[E, M],
) ([]EventRead[E, M], error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}

	// ids are assigned here so the returned events carry what was stored
	sent := make([]Event[E, M], len(events))
	envs := make([]Envelope, 0, len(events))
	for i, ev := range events {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		sent[i] = ev
		env, err := s.encode(stream, ev)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}

	stored, err := s.backend.Append(ctx, stream, expected, envs)
	if err != nil {
		return nil, IOFailure("append", stream, err)
	}
	if len(stored) != len(events) {
		return nil, IOFailure("append", stream, fmt.Errorf("backend stored %d of %d events", len(stored), len(events)))
	}

	out := make([]EventRead[E, M], len(events))
	for i, env := range stored {
		out[i] = EventRead[E, M]{
			Event:     sent[i],
			StreamID:  stream,
			Version:   env.Version,
			Seq:       env.Seq,
			CreatedAt: env.OccurredAt,
		}
	}
	return out, nil
}

func (s *typedStore[E, M]) Read(ctx context.Context, stream StreamID, rng ReadRange) ([]EventRead[E, M], error) {
	envs, err := s.backend.Read(ctx, stream, rng)
	if err != nil {
		return nil, IOFailure("read", stream, err)
	}
	out := make([]EventRead[E, M], 0, len(envs))
	for _, env := range envs {
		ev, err := s.decode(env)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *typedStore[E, M]) encode(stream StreamID, ev Event[E, M]) (Envelope, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode event %T: %w", ev.Data, err)
	}
	var meta json.RawMessage
	if ev.Metadata != nil {
		if meta, err = json.Marshal(ev.Metadata); err != nil {
			return Envelope{}, fmt.Errorf("failed to encode metadata: %w", err)
		}
	}
	env := Envelope{
		ID:            ev.ID.String(),
		CorrelationID: nullUUIDString(ev.CorrelationID),
		CausationID:   nullUUIDString(ev.CausationID),
		StreamID:      stream,
		Name:          ev.Name,
		Type:          EventTypeOf(any(ev.Data)),
		OccurredAt:    s.now().UTC(),
		Data:          data,
		Metadata:      meta,
	}.Seal()

	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (s *typedStore[E, M]) decode(env Envelope) (out EventRead[E, M], err error) {
	if err = env.Verify(); err != nil {
		return out, err
	}

	payload, err := s.registry.Decode(env)
	if err != nil {
		return out, Corrupt(env.StreamID, "decode %s at version %d: %v", env.Type, env.Version, err)
	}
	data, ok := payload.(E)
	if !ok {
		return out, Corrupt(env.StreamID, "payload %T at version %d is not %T", payload, env.Version, *new(E))
	}

	id, err := uuid.Parse(env.ID)
	if err != nil {
		return out, Corrupt(env.StreamID, "event id %q: %v", env.ID, err)
	}
	out = EventRead[E, M]{
		Event: Event[E, M]{
			ID:            id,
			CorrelationID: parseNullUUID(env.CorrelationID),
			CausationID:   parseNullUUID(env.CausationID),
			Name:          env.Name,
			Data:          data,
		},
		StreamID:  env.StreamID,
		Version:   env.Version,
		Seq:       env.Seq,
		CreatedAt: env.OccurredAt,
	}
	if len(env.Metadata) > 0 && string(env.Metadata) != "null" {
		m := new(M)
		if err = json.Unmarshal(env.Metadata, m); err != nil {
			return out, Corrupt(env.StreamID, "metadata at version %d: %v", env.Version, err)
		}
		out.Metadata = m
	}
	return out, nil
}

func nullUUIDString(u uuid.NullUUID) string {
	if !u.Valid {
		return ""
	}
	return u.UUID.String()
}

func parseNullUUID(s string) uuid.NullUUID {
	if s == "" {
		return uuid.NullUUID{}
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

var _ EventStore[any, any] = (*typedStore[any, any])(nil)
