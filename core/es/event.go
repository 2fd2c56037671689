package es

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/reflector"
)

// Event is a payload decided by an aggregate, wrapped for appending.
type Event[E, M any] struct {
	ID            uuid.UUID
	CorrelationID uuid.NullUUID
	CausationID   uuid.NullUUID
	Name          string
	Data          E
	Metadata      *M
}

// EventRead is an event as persisted, carrying its stream position.
type EventRead[E, M any] struct {
	Event[E, M]
	StreamID  StreamID
	Version   Version
	Seq       uint64
	CreatedAt time.Time
}

func (e EventRead[E, M]) LogAttrs() slog.Attr {
	return slog.Group(
		"event",
		slog.String("id", e.ID.String()),
		slog.String("name", e.Name),
		e.StreamID.SlogAttr(),
		e.Version.SlogAttr(),
	)
}

// LastVersion returns the version of the last event, or 0.
func LastVersion[E, M any](events []EventRead[E, M]) Version {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Version
}

// === Registry ===

// Registration binds an event type name to a decoder for its payload.
type Registration struct {
	Type   string
	decode func(json.RawMessage) (any, error)
}

// EventOf returns the registration for the concrete payload type T.
// Decoded payloads are values of T, not pointers.
func EventOf[T any]() Registration {
	var zero T
	return Registration{
		Type: EventTypeOf(zero),
		decode: func(data json.RawMessage) (any, error) {
			var v T
			if len(data) > 0 {
				if err := json.Unmarshal(data, &v); err != nil {
					return nil, err
				}
			}
			return v, nil
		},
	}
}

// EventRegistry maps event type names to decoders so persisted payloads can be
// turned back into domain events.
type EventRegistry struct {
	mu       sync.RWMutex
	decoders map[string]func(json.RawMessage) (any, error)
}

func NewRegistry(regs ...Registration) *EventRegistry {
	r := &EventRegistry{decoders: map[string]func(json.RawMessage) (any, error){}}
	r.Register(regs...)
	return r
}

func (r *EventRegistry) Register(regs ...Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range regs {
		r.decoders[reg.Type] = reg.decode
	}
}

// Types lists the registered type names in sorted order.
func (r *EventRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.decoders))
	for t := range r.decoders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *EventRegistry) Decode(env Envelope) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}
	return decode(env.Data)
}

// EventTypeOf returns the payload type name of ev: its EventType() method when
// present, the qualified Go type name otherwise.
func EventTypeOf(ev any) string {
	switch t := ev.(type) {
	case interface{ EventType() string }:
		return t.EventType()
	default:
		return reflector.TypeInfoOf(ev).Name
	}
}

// EventNameOf returns the event name of ev: its EventName() method when
// present, the payload type name otherwise.
func EventNameOf(ev any) string {
	if n, ok := ev.(interface{ EventName() string }); ok {
		return n.EventName()
	}
	return EventTypeOf(ev)
}
