package es

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/cache"
)

type (
	valueOption[T any] struct{ v T }

	handleOptions struct {
		correlationID uuid.NullUUID
		causationID   uuid.NullUUID
		metadata      any
		name          string
		newID         func() uuid.UUID
	}

	// HandleOption customizes the events written by Handle.
	HandleOption interface{ applyToHandle(*handleOptions) }

	CorrelationOption valueOption[uuid.UUID]
	CausationOption   valueOption[uuid.UUID]
	MetadataOption    valueOption[any]
	EventNameOption   valueOption[string]
	IDGeneratorOption valueOption[func() uuid.UUID]
)

// WithCorrelationID stamps every written event with id.
func WithCorrelationID(id uuid.UUID) CorrelationOption { return CorrelationOption{v: id} }

// WithCausationID stamps every written event with id.
func WithCausationID(id uuid.UUID) CausationOption { return CausationOption{v: id} }

// WithMetadata attaches m to every written event. m must be an M or *M.
func WithMetadata(m any) MetadataOption { return MetadataOption{v: m} }

// WithEventName overrides the event name derived from the payload.
func WithEventName(name string) EventNameOption { return EventNameOption{v: name} }

// WithIDGenerator replaces uuid.New for event ids.
func WithIDGenerator(fn func() uuid.UUID) IDGeneratorOption { return IDGeneratorOption{v: fn} }

func (o CorrelationOption) applyToHandle(h *handleOptions) {
	h.correlationID = uuid.NullUUID{UUID: o.v, Valid: true}
}
func (o CausationOption) applyToHandle(h *handleOptions) {
	h.causationID = uuid.NullUUID{UUID: o.v, Valid: true}
}
func (o MetadataOption) applyToHandle(h *handleOptions)    { h.metadata = o.v }
func (o EventNameOption) applyToHandle(h *handleOptions)   { h.name = o.v }
func (o IDGeneratorOption) applyToHandle(h *handleOptions) { h.newID = o.v }

func newHandleOptions(opts []HandleOption) handleOptions {
	o := handleOptions{newID: uuid.New}
	for _, opt := range opts {
		opt.applyToHandle(&o)
	}
	return o
}

// === CommandHandler options ===

type (
	commandHandlerOptions struct {
		log     *slog.Logger
		metrics ESMetrics
		cache   cache.Cache
		// lruSize > 0 makes the handler build and own an LRU.
		lruSize int
	}

	CommandHandlerOption interface {
		applyToCommandHandler(*commandHandlerOptions)
	}

	LogOption           struct{ l *slog.Logger }
	ESMetricsOption     struct{ m ESMetrics }
	StateCacheOption    valueOption[cache.Cache]
	StateCacheLRUOption struct{ size int }
)

func WithLog(l *slog.Logger) LogOption { return LogOption{l: l} }

// WithMetrics sets the metrics implementation for ES components.
func WithMetrics(m ESMetrics) ESMetricsOption { return ESMetricsOption{m: m} }

// WithStateCache keeps folded states in c between commands.
func WithStateCache(c cache.Cache) StateCacheOption { return StateCacheOption{v: c} }

// WithStateCacheLRU keeps up to size folded states in an LRU owned by the
// handler. Call CommandHandler.Close to stop it.
func WithStateCacheLRU(size int) StateCacheLRUOption { return StateCacheLRUOption{size: size} }

func (o LogOption) applyToCommandHandler(c *commandHandlerOptions)       { c.log = o.l }
func (o ESMetricsOption) applyToCommandHandler(c *commandHandlerOptions) { c.metrics = o.m }
func (o StateCacheOption) applyToCommandHandler(c *commandHandlerOptions) {
	c.cache, c.lruSize = o.v, 0
}
func (o StateCacheLRUOption) applyToCommandHandler(c *commandHandlerOptions) {
	c.cache, c.lruSize = nil, o.size
}
