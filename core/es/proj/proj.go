// Package proj maintains read models from event streams.
//
// A Projector folds the events of one stream onto the last saved snapshot of
// its entity with the aggregate's Apply, then writes the result through a
// SnapshotStore. Writes are gated on the snapshot version, so replaying the
// same events never moves a read model backwards.
package proj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/perkey"
	"github.com/codewandler/esk/core/sf"
)

type Projector[T, C, E, M any] struct {
	name      string
	log       *slog.Logger
	agg       es.Aggregate[es.Maybe[T], C, E]
	events    es.EventStore[E, M]
	snapshots SnapshotStore[T]
	key       KeyFunc
	metrics   es.ESMetrics
	keys      *perkey.Scheduler[string]
	syncs     *sf.Singleflight[struct{}]
}

// NewProjector creates a projector. events may be nil, in which case gaps
// cannot be repaired and Sync is unavailable.
func NewProjector[T, C, E, M any](
	agg es.Aggregate[es.Maybe[T], C, E],
	events es.EventStore[E, M],
	snapshots SnapshotStore[T],
	opts ...Option,
) (*Projector[T, C, E, M], error) {
	if agg == nil {
		return nil, errors.New("aggregate is required")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}

	o := options{key: StreamKey}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = fmt.Sprintf("%T", *new(T))
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = es.NopESMetrics()
	}

	return &Projector[T, C, E, M]{
		name:      o.name,
		log:       o.log.With(slog.String("projection", o.name)),
		agg:       agg,
		events:    events,
		snapshots: snapshots,
		key:       o.key,
		metrics:   o.metrics,
		keys:      perkey.New[string](),
		syncs:     sf.New[struct{}](),
	}, nil
}

func (p *Projector[T, C, E, M]) Name() string { return p.name }

// Project folds events of stream into the read model. Events at or below the
// saved version are skipped. If events do not continue the saved version, the
// missing range is read from the event store first.
func (p *Projector[T, C, E, M]) Project(ctx context.Context, stream es.StreamID, events []es.EventRead[E, M]) error {
	key, err := p.key(stream)
	if err != nil {
		return err
	}
	return p.keys.DoContext(ctx, key, func() error {
		return p.project(ctx, key, stream, events, false)
	})
}

// Sync brings the read model of stream up to the head of its log. Concurrent
// calls for the same stream share one run.
func (p *Projector[T, C, E, M]) Sync(ctx context.Context, stream es.StreamID) error {
	if p.events == nil {
		return errors.New("sync needs an event store")
	}
	key, err := p.key(stream)
	if err != nil {
		return err
	}
	_, _, err = p.syncs.DoContext(ctx, string(stream), func() (struct{}, error) {
		return struct{}{}, p.keys.DoContext(ctx, key, func() error {
			return p.project(ctx, key, stream, nil, true)
		})
	})
	return err
}

// Get returns the saved snapshot of the entity stream belongs to.
func (p *Projector[T, C, E, M]) Get(ctx context.Context, stream es.StreamID) (es.Maybe[Snapshot[T]], error) {
	key, err := p.key(stream)
	if err != nil {
		return es.None[Snapshot[T]](), err
	}
	return p.snapshots.Load(ctx, key)
}

// Close stops the per-entity workers.
func (p *Projector[T, C, E, M]) Close() { p.keys.Close() }

func (p *Projector[T, C, E, M]) project(ctx context.Context, key string, stream es.StreamID, events []es.EventRead[E, M], readAll bool) (err error) {
	log := p.log.With(stream.SlogAttr(), slog.String("key", key))

	t := p.metrics.ProjectDuration(p.name)
	defer t.ObserveDuration()
	defer func() {
		if err != nil {
			p.metrics.ProjectionFailed(p.name)
		}
	}()

	loaded, err := p.snapshots.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("projection %s: %w", p.name, err)
	}

	var (
		base    = p.agg.Init()
		version es.Version
	)
	if snap, ok := loaded.Get(); ok {
		base, version = es.Some(snap.State), snap.Version
	}

	pending := pendingAfter(events, version)
	if readAll || !continues(pending, version) {
		if p.events == nil {
			return fmt.Errorf("%w: %s at version %d", es.ErrProjectionGap, stream, version)
		}
		log.Debug("reading missing events", version.SlogAttrWithKey("from"))
		pending, err = p.events.Read(ctx, stream, es.ReadFromVersion(version+1))
		if err != nil {
			return fmt.Errorf("projection %s: %w", p.name, err)
		}
		if !continues(pending, version) {
			return fmt.Errorf("%w: %s at version %d", es.ErrProjectionGap, stream, version)
		}
	}
	if len(pending) == 0 {
		if loaded.IsNone() {
			return fmt.Errorf("%w: %s", es.ErrEntityNotFound, stream)
		}
		p.metrics.ProjectionSaved(p.name, false)
		return nil
	}

	state, ok := es.Fold(p.agg, base, pending).Get()
	if !ok {
		return fmt.Errorf("%w: %s", es.ErrEntityNotFound, stream)
	}

	snap := Snapshot[T]{Key: key, StreamID: stream, Version: es.LastVersion(pending), State: state}
	written, err := p.snapshots.Save(ctx, snap)
	if err != nil {
		return fmt.Errorf("projection %s: %w", p.name, err)
	}
	p.metrics.ProjectionSaved(p.name, written)

	if written {
		log.Debug("projected", snap.logAttrs(), slog.Int("num_events", len(pending)))
	} else {
		log.Warn("stale snapshot not saved", snap.logAttrs())
	}
	return nil
}

// pendingAfter drops the events at or below v.
func pendingAfter[E, M any](events []es.EventRead[E, M], v es.Version) []es.EventRead[E, M] {
	for i, ev := range events {
		if ev.Version > v {
			return events[i:]
		}
	}
	return nil
}

// continues reports whether events are consecutive starting at v+1. An empty
// slice trivially continues.
func continues[E, M any](events []es.EventRead[E, M], v es.Version) bool {
	for _, ev := range events {
		v++
		if ev.Version != v {
			return false
		}
	}
	return true
}
