package es

import (
	"context"

	"github.com/codewandler/esk/core/metrics"
)

// ESMetrics defines the metrics interface for the event-sourcing kernel.
// Labels are stream categories (see StreamID.Category) or projection names.
// Implementations should be thread-safe.
type ESMetrics interface {
	// Store operations
	StoreReadDuration(category string) metrics.Timer
	StoreAppendDuration(category string) metrics.Timer
	EventsAppended(category string, count int)

	// Command pipeline
	HandleDuration(category string) metrics.Timer
	CommandRejected(category string)
	ConcurrencyConflict(category string)

	// State cache
	CacheHit(category string)
	CacheMiss(category string)

	// Projection
	ProjectDuration(projection string) metrics.Timer
	ProjectionSaved(projection string, written bool)
	ProjectionFailed(projection string)
}

// nopESMetrics is a no-op implementation of ESMetrics.
type nopESMetrics struct{}

func (nopESMetrics) StoreReadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)               {}

func (nopESMetrics) HandleDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) CommandRejected(string)              {}
func (nopESMetrics) ConcurrencyConflict(string)          {}

func (nopESMetrics) CacheHit(string)  {}
func (nopESMetrics) CacheMiss(string) {}

func (nopESMetrics) ProjectDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) ProjectionSaved(string, bool)         {}
func (nopESMetrics) ProjectionFailed(string)              {}

// NopESMetrics returns a no-op ESMetrics implementation.
func NopESMetrics() ESMetrics { return nopESMetrics{} }

// instrumentedStore records store timings around an EnvelopeStore.
type instrumentedStore struct {
	inner   EnvelopeStore
	metrics ESMetrics
}

// InstrumentStore wraps s so reads and appends are timed with m.
func InstrumentStore(s EnvelopeStore, m ESMetrics) EnvelopeStore {
	if m == nil {
		return s
	}
	return &instrumentedStore{inner: s, metrics: m}
}

func (s *instrumentedStore) Append(ctx context.Context, stream StreamID, expected ExpectedVersion, envs []Envelope) ([]Envelope, error) {
	t := s.metrics.StoreAppendDuration(stream.Category())
	defer t.ObserveDuration()
	out, err := s.inner.Append(ctx, stream, expected, envs)
	if err == nil {
		s.metrics.EventsAppended(stream.Category(), len(out))
	}
	return out, err
}

func (s *instrumentedStore) Read(ctx context.Context, stream StreamID, rng ReadRange) ([]Envelope, error) {
	t := s.metrics.StoreReadDuration(stream.Category())
	defer t.ObserveDuration()
	return s.inner.Read(ctx, stream, rng)
}
