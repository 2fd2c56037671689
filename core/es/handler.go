package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codewandler/esk/core/cache"
)

// Handle runs cmd against the state folded from agg.Init() over the events of
// stream selected by rng, and appends the decided events under expected.
//
// A rejected command returns the aggregate's *ValidationError and writes
// nothing. A version mismatch returns a *ConflictError and leaves the log
// unchanged. Storage failures are returned as *StoreError. On success the
// appended events are returned with their store-assigned versions; a command
// deciding no events returns an empty result without touching the store.
//
// Under a non-exact expectation other writers may append between the read
// and the append; their events are read back so the resulting state is the
// fold of the whole stream. If that read fails the appended events are
// returned together with the error.
func Handle[S, C, E, M any](
	ctx context.Context,
	agg Aggregate[S, C, E],
	store EventStore[E, M],
	cmd C,
	stream StreamID,
	rng ReadRange,
	expected ExpectedVersion,
	opts ...HandleOption,
) ([]EventRead[E, M], error) {
	_, out, err := handle(ctx, agg, store, agg.Init(), cmd, stream, rng, expected, opts)
	return out, err
}

// HandleFrom is Handle folding onto base instead of agg.Init(). base must be
// the state of stream right before rng starts.
func HandleFrom[S, C, E, M any](
	ctx context.Context,
	agg Aggregate[S, C, E],
	store EventStore[E, M],
	base S,
	cmd C,
	stream StreamID,
	rng ReadRange,
	expected ExpectedVersion,
	opts ...HandleOption,
) ([]EventRead[E, M], error) {
	_, out, err := handle(ctx, agg, store, base, cmd, stream, rng, expected, opts)
	return out, err
}

func handle[S, C, E, M any](
	ctx context.Context,
	agg Aggregate[S, C, E],
	store EventStore[E, M],
	base S,
	cmd C,
	stream StreamID,
	rng ReadRange,
	expected ExpectedVersion,
	opts []HandleOption,
) (S, []EventRead[E, M], error) {
	if stream == "" {
		return base, nil, errors.New("stream id is empty")
	}
	options := newHandleOptions(opts)

	read, err := store.Read(ctx, stream, rng)
	if err != nil {
		return base, nil, IOFailure("read", stream, err)
	}
	if err = checkSequence(stream, rng, read); err != nil {
		return base, nil, err
	}

	state := Fold(agg, base, read)

	decided, err := agg.Execute(state, cmd)
	if err != nil {
		return state, nil, err
	}
	if len(decided) == 0 {
		return state, nil, nil
	}

	events, err := wrapEvents[E, M](decided, options)
	if err != nil {
		return state, nil, err
	}

	appended, err := store.Append(ctx, stream, expected, events)
	if err != nil {
		return state, nil, err
	}

	head := rng.From() - 1 + Version(len(read))
	if appended[0].Version == head+1 {
		return Fold(agg, state, appended), appended, nil
	}

	// Another writer appended between the read and the append, which only a
	// non-exact expectation allows. Fold the missed events as well.
	caughtUp, err := catchUp(ctx, agg, store, state, stream, head, LastVersion(appended))
	if err != nil {
		return state, appended, err
	}
	return caughtUp, appended, nil
}

// catchUp folds the events after version from up to and including to.
func catchUp[S, C, E, M any](
	ctx context.Context,
	agg Aggregate[S, C, E],
	store EventStore[E, M],
	state S,
	stream StreamID,
	from, to Version,
) (S, error) {
	rng := ReadFromVersion(from + 1)
	read, err := store.Read(ctx, stream, rng)
	if err != nil {
		return state, IOFailure("read", stream, err)
	}
	if err = checkSequence(stream, rng, read); err != nil {
		return state, err
	}
	for _, ev := range read {
		if ev.Version > to {
			break
		}
		state = agg.Apply(state, ev.Data)
	}
	return state, nil
}

// checkSequence rejects reads that are out of range, unordered or have holes.
func checkSequence[E, M any](stream StreamID, rng ReadRange, events []EventRead[E, M]) error {
	expect := rng.From()
	for _, ev := range events {
		if ev.Version != expect {
			return Corrupt(stream, "expect version %d, got %d", expect, ev.Version)
		}
		expect++
	}
	return nil
}

func wrapEvents[E, M any](decided []E, options handleOptions) ([]Event[E, M], error) {
	var meta *M
	switch m := options.metadata.(type) {
	case nil:
	case M:
		meta = &m
	case *M:
		meta = m
	default:
		return nil, fmt.Errorf("metadata %T is not %T", options.metadata, *new(M))
	}

	out := make([]Event[E, M], 0, len(decided))
	for _, d := range decided {
		name := options.name
		if name == "" {
			name = EventNameOf(any(d))
		}
		out = append(out, Event[E, M]{
			ID:            options.newID(),
			CorrelationID: options.correlationID,
			CausationID:   options.causationID,
			Name:          name,
			Data:          d,
			Metadata:      meta,
		})
	}
	return out, nil
}

// === CommandHandler ===

// Routed is implemented by commands that know the stream they target and the
// version precondition they append under.
type Routed interface {
	StreamID() StreamID
	ExpectedVersion() ExpectedVersion
}

// AppendedFunc is called after a successful append with the new state.
type AppendedFunc[S, E, M any] func(ctx context.Context, stream StreamID, state S, events []EventRead[E, M]) error

type cachedState[S any] struct {
	State   S
	Version Version
}

// CommandHandler dispatches routed commands through Handle. It keeps folded
// states in a cache so a command only reads the events written since the
// cached version, and runs an optional hook after every append.
type CommandHandler[S any, C Routed, E, M any] struct {
	log      *slog.Logger
	agg      Aggregate[S, C, E]
	store    EventStore[E, M]
	states   cache.Typed[cachedState[S]]
	owned    *cache.LRU
	metrics  ESMetrics
	appended []AppendedFunc[S, E, M]
}

func NewCommandHandler[S any, C Routed, E, M any](
	agg Aggregate[S, C, E],
	store EventStore[E, M],
	opts ...CommandHandlerOption,
) *CommandHandler[S, C, E, M] {
	options := commandHandlerOptions{}
	for _, opt := range opts {
		opt.applyToCommandHandler(&options)
	}
	if options.log == nil {
		options.log = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = NopESMetrics()
	}
	var owned *cache.LRU
	if options.lruSize > 0 {
		owned = cache.NewLRU(cache.LRUOpts{Size: options.lruSize})
		options.cache = owned
	}
	if options.cache == nil {
		options.cache = cache.NewNop()
	}

	return &CommandHandler[S, C, E, M]{
		log:     options.log.With(slog.String("handler", fmt.Sprintf("%T", agg))),
		agg:     agg,
		store:   store,
		states:  cache.NewTyped[cachedState[S]](options.cache),
		owned:   owned,
		metrics: options.metrics,
	}
}

// Close stops the state cache if the handler built it (WithStateCacheLRU).
// A cache passed with WithStateCache belongs to the caller.
func (h *CommandHandler[S, C, E, M]) Close() {
	if h.owned != nil {
		h.owned.Close()
	}
}

// OnAppended registers fn to run after each successful append. Hooks run
// synchronously in registration order before Dispatch returns.
func (h *CommandHandler[S, C, E, M]) OnAppended(fn AppendedFunc[S, E, M]) {
	h.appended = append(h.appended, fn)
}

// Dispatch handles cmd. If an after-append hook fails the events are already
// durable; the appended events are returned together with an error matching
// ErrProjectionFailed.
func (h *CommandHandler[S, C, E, M]) Dispatch(ctx context.Context, cmd C, opts ...HandleOption) ([]EventRead[E, M], error) {
	var (
		stream   = cmd.StreamID()
		category = stream.Category()
		expected = cmd.ExpectedVersion()
		log      = h.log.With(stream.SlogAttr(), slog.String("command", fmt.Sprintf("%T", cmd)), expected.SlogAttr())
	)

	t := h.metrics.HandleDuration(category)
	defer t.ObserveDuration()

	base, rng := h.agg.Init(), ReadAll()
	if cached, ok := h.states.Get(string(stream)); ok {
		h.metrics.CacheHit(category)
		base, rng = cached.State, ReadFromVersion(cached.Version+1)
	} else {
		h.metrics.CacheMiss(category)
	}

	log.Debug("dispatch", slog.String("range", rng.String()))

	state, appended, err := handle(ctx, h.agg, h.store, base, cmd, stream, rng, expected, opts)
	if err != nil && len(appended) > 0 {
		// durable, but the new state is unknown
		h.states.Delete(string(stream))
		log.Error("read after append failed", slog.Any("error", err))
		return appended, fmt.Errorf("%w: %w", ErrProjectionFailed, err)
	}
	switch {
	case errors.Is(err, ErrValidation):
		h.metrics.CommandRejected(category)
		log.Debug("command rejected", slog.Any("error", err))
		return nil, err
	case errors.Is(err, ErrConcurrencyConflict):
		h.metrics.ConcurrencyConflict(category)
		log.Debug("concurrency conflict", slog.Any("error", err))
		return nil, err
	case err != nil:
		h.states.Delete(string(stream))
		log.Error("dispatch failed", slog.Any("error", err))
		return nil, err
	}
	if len(appended) == 0 {
		return nil, nil
	}

	head := LastVersion(appended)
	h.states.Put(string(stream), cachedState[S]{State: state, Version: head})
	log.Debug("appended", head.SlogAttrWithKey("head"), slog.Int("num_events", len(appended)))

	for _, fn := range h.appended {
		if err := fn(ctx, stream, state, appended); err != nil {
			log.Error("after append hook failed", slog.Any("error", err))
			return appended, fmt.Errorf("%w: %w", ErrProjectionFailed, err)
		}
	}
	return appended, nil
}

// Invalidate drops the cached state of stream.
func (h *CommandHandler[S, C, E, M]) Invalidate(stream StreamID) {
	h.states.Delete(string(stream))
}
