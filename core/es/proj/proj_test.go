package proj_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/estests/domain"
	"github.com/codewandler/esk/core/es/proj"
	"github.com/codewandler/esk/ports/kv"
)

type (
	counterEvents    = []es.EventRead[domain.Event, domain.Meta]
	counterProjector = proj.Projector[domain.Counter, domain.Command, domain.Event, domain.Meta]
)

func newProjector(t *testing.T, events es.EventStore[domain.Event, domain.Meta], snaps proj.SnapshotStore[domain.Counter]) *counterProjector {
	t.Helper()
	p, err := proj.NewProjector[domain.Counter, domain.Command, domain.Event, domain.Meta](
		domain.Agg{}, events, snaps, proj.WithName("counters"),
	)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// seed appends an Opened event and n increments of 1 to the stream of id.
func seed(t *testing.T, s es.EventStore[domain.Event, domain.Meta], id string, n int) counterEvents {
	t.Helper()
	evs := []es.Event[domain.Event, domain.Meta]{{Data: domain.Opened{ID: id}}}
	for range n {
		evs = append(evs, es.Event[domain.Event, domain.Meta]{Data: domain.Incremented{Inc: 1}})
	}
	out, err := s.Append(t.Context(), domain.StreamFor(id), es.ExpectNoStream(), evs)
	require.NoError(t, err)
	return out
}

func snapshotStores() map[string]func() proj.SnapshotStore[domain.Counter] {
	return map[string]func() proj.SnapshotStore[domain.Counter]{
		"memory": func() proj.SnapshotStore[domain.Counter] { return proj.NewInMemoryStore[domain.Counter]() },
		"kv": func() proj.SnapshotStore[domain.Counter] {
			return proj.NewKVStore[domain.Counter](kv.NewMemStore(), "counter.")
		},
	}
}

func TestProjector(t *testing.T) {
	for name, newSnaps := range snapshotStores() {
		t.Run(name, func(t *testing.T) {
			var (
				events = domain.NewStore()
				snaps  = newSnaps()
				p      = newProjector(t, events, snaps)
				stream = domain.StreamFor("c1")
			)

			all := seed(t, events, "c1", 3)
			require.NoError(t, p.Project(t.Context(), stream, all[:2]))

			got, err := p.Get(t.Context(), stream)
			require.NoError(t, err)
			snap, ok := got.Get()
			require.True(t, ok)
			require.Equal(t, es.Version(2), snap.Version)
			require.EqualValues(t, 1, snap.State.Counter)

			// replaying the whole batch only applies what is new
			require.NoError(t, p.Project(t.Context(), stream, all))
			require.NoError(t, p.Project(t.Context(), stream, all))

			got, err = p.Get(t.Context(), stream)
			require.NoError(t, err)
			snap, _ = got.Get()
			require.Equal(t, es.Version(4), snap.Version)
			require.EqualValues(t, 3, snap.State.Counter)
			require.Equal(t, 3, snap.State.NumTotalEvents)
			require.Equal(t, string(stream), snap.Key)
			require.Equal(t, stream, snap.StreamID)
		})
	}
}

func TestProjector_idempotent(t *testing.T) {
	events := domain.NewStore()
	all := seed(t, events, "c1", 5)

	var results []proj.Snapshot[domain.Counter]
	for range 2 {
		snaps := proj.NewInMemoryStore[domain.Counter]()
		p := newProjector(t, nil, snaps)
		require.NoError(t, p.Project(t.Context(), domain.StreamFor("c1"), all))
		got, err := snaps.Load(t.Context(), string(domain.StreamFor("c1")))
		require.NoError(t, err)
		snap, ok := got.Get()
		require.True(t, ok)
		results = append(results, snap)
	}
	require.Equal(t, results[0], results[1])
}

func TestProjector_gapIsRepairedFromStore(t *testing.T) {
	events := domain.NewStore()
	p := newProjector(t, events, proj.NewInMemoryStore[domain.Counter]())
	stream := domain.StreamFor("c1")

	all := seed(t, events, "c1", 4)
	// only the tail is handed over; versions 1-3 must be read back
	require.NoError(t, p.Project(t.Context(), stream, all[3:]))

	got, err := p.Get(t.Context(), stream)
	require.NoError(t, err)
	snap, ok := got.Get()
	require.True(t, ok)
	require.Equal(t, es.Version(5), snap.Version)
	require.EqualValues(t, 4, snap.State.Counter)
}

func TestProjector_gapWithoutStore(t *testing.T) {
	events := domain.NewStore()
	p := newProjector(t, nil, proj.NewInMemoryStore[domain.Counter]())

	all := seed(t, events, "c1", 2)
	err := p.Project(t.Context(), domain.StreamFor("c1"), all[1:])
	require.ErrorIs(t, err, es.ErrProjectionGap)
}

func TestProjector_entityNotFound(t *testing.T) {
	events := domain.NewStore()
	snaps := proj.NewInMemoryStore[domain.Counter]()
	p := newProjector(t, events, snaps)
	stream := domain.StreamFor("ghost")

	// increments without an Opened event fold to an absent counter
	out, err := events.Append(t.Context(), stream, es.ExpectNoStream(), []es.Event[domain.Event, domain.Meta]{
		{Data: domain.Incremented{Inc: 1}},
	})
	require.NoError(t, err)

	err = p.Project(t.Context(), stream, out)
	require.ErrorIs(t, err, es.ErrEntityNotFound)
	require.Empty(t, snaps.Keys())
}

func TestProjector_emptyStreamIsNotFound(t *testing.T) {
	events := domain.NewStore()
	snaps := proj.NewInMemoryStore[domain.Counter]()
	p := newProjector(t, events, snaps)
	stream := domain.StreamFor("nobody")

	require.ErrorIs(t, p.Project(t.Context(), stream, nil), es.ErrEntityNotFound)
	require.ErrorIs(t, p.Sync(t.Context(), stream), es.ErrEntityNotFound)
	require.Empty(t, snaps.Keys())

	// a snapshot at the head is simply up to date
	seed(t, events, "c1", 1)
	require.NoError(t, p.Sync(t.Context(), domain.StreamFor("c1")))
	require.NoError(t, p.Sync(t.Context(), domain.StreamFor("c1")))
	require.NoError(t, p.Project(t.Context(), domain.StreamFor("c1"), nil))
}

func TestProjector_sync(t *testing.T) {
	events := domain.NewStore()
	p := newProjector(t, events, proj.NewInMemoryStore[domain.Counter]())
	stream := domain.StreamFor("c1")

	seed(t, events, "c1", 2)
	require.NoError(t, p.Sync(t.Context(), stream))
	require.NoError(t, p.Sync(t.Context(), stream))

	got, err := p.Get(t.Context(), stream)
	require.NoError(t, err)
	snap, _ := got.Get()
	require.Equal(t, es.Version(3), snap.Version)

	_, err = events.Append(t.Context(), stream, es.ExpectExact(3), []es.Event[domain.Event, domain.Meta]{
		{Data: domain.Incremented{Reset: true}},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Sync(t.Context(), stream))
		}()
	}
	wg.Wait()

	got, err = p.Get(t.Context(), stream)
	require.NoError(t, err)
	snap, _ = got.Get()
	require.Equal(t, es.Version(4), snap.Version)
	require.EqualValues(t, 0, snap.State.Counter)
	require.Equal(t, 1, snap.State.NumResets)
}

func TestProjector_syncNeedsStore(t *testing.T) {
	p := newProjector(t, nil, proj.NewInMemoryStore[domain.Counter]())
	require.Error(t, p.Sync(t.Context(), domain.StreamFor("c1")))
}

type failingSnapshots struct {
	proj.SnapshotStore[domain.Counter]
	err error
}

func (f failingSnapshots) Save(_ context.Context, _ proj.Snapshot[domain.Counter]) (bool, error) {
	return false, f.err
}

func TestProjector_saveFailure(t *testing.T) {
	boom := errors.New("tx aborted")
	events := domain.NewStore()
	p := newProjector(t, events, failingSnapshots{SnapshotStore: proj.NewInMemoryStore[domain.Counter](), err: boom})

	all := seed(t, events, "c1", 1)
	err := p.Project(t.Context(), domain.StreamFor("c1"), all)
	require.ErrorIs(t, err, boom)
}

func TestProjector_concurrentProjectNeverRegresses(t *testing.T) {
	events := domain.NewStore()
	snaps := proj.NewInMemoryStore[domain.Counter]()
	p := newProjector(t, events, snaps)
	stream := domain.StreamFor("c1")
	all := seed(t, events, "c1", 10)

	var wg sync.WaitGroup
	for i := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Project(t.Context(), stream, all[:i+1]))
		}()
	}
	wg.Wait()
	require.NoError(t, p.Project(t.Context(), stream, all))

	got, err := p.Get(t.Context(), stream)
	require.NoError(t, err)
	snap, _ := got.Get()
	require.Equal(t, es.LastVersion(all), snap.Version)
	require.EqualValues(t, 10, snap.State.Counter)
}

func TestKVStore_versionGate(t *testing.T) {
	s := proj.NewKVStore[domain.Counter](kv.NewMemStore(), "c.")

	written, err := s.Save(t.Context(), proj.Snapshot[domain.Counter]{Key: "k", Version: 3, State: domain.Counter{Counter: 3}})
	require.NoError(t, err)
	require.True(t, written)

	for _, v := range []es.Version{1, 3} {
		written, err = s.Save(t.Context(), proj.Snapshot[domain.Counter]{Key: "k", Version: v, State: domain.Counter{Counter: 99}})
		require.NoError(t, err)
		require.False(t, written)
	}

	got, err := s.Load(t.Context(), "k")
	require.NoError(t, err)
	snap, ok := got.Get()
	require.True(t, ok)
	require.EqualValues(t, 3, snap.State.Counter)

	got, err = s.Load(t.Context(), "missing")
	require.NoError(t, err)
	require.True(t, got.IsNone())
}

func TestKVStore_Keys(t *testing.T) {
	mem := kv.NewMemStore()
	s := proj.NewKVStore[domain.Counter](mem, "c.")
	require.NoError(t, kv.Put(t.Context(), mem, "other", 1, kv.PutOptions{}))

	for _, k := range []string{"b", "a"} {
		_, err := s.Save(t.Context(), proj.Snapshot[domain.Counter]{Key: k, Version: 1})
		require.NoError(t, err)
	}

	keys, err := s.Keys(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}
