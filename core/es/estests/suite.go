// Package estests holds the conformance suite every EnvelopeStore backend
// must pass, plus the pipeline and projector tests run against it.
package estests

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/estests/domain"
)

// StoreFactory returns a fresh, empty backend.
type StoreFactory func(t *testing.T) es.EnvelopeStore

func typed(backend es.EnvelopeStore) es.EventStore[domain.Event, domain.Meta] {
	return es.NewEventStore[domain.Event, domain.Meta](backend, domain.Registry())
}

func incs(n int) []es.Event[domain.Event, domain.Meta] {
	out := make([]es.Event[domain.Event, domain.Meta], n)
	for i := range out {
		out[i] = es.Event[domain.Event, domain.Meta]{Name: "inc", Data: domain.Incremented{Inc: uint8(i + 1)}}
	}
	return out
}

func versions[E, M any](events []es.EventRead[E, M]) []es.Version {
	out := make([]es.Version, len(events))
	for i, ev := range events {
		out[i] = ev.Version
	}
	return out
}

// RunStoreSuite runs the backend contract against stores built by newStore.
func RunStoreSuite(t *testing.T, newStore StoreFactory) {
	t.Run("unknown stream reads empty", func(t *testing.T) {
		s := typed(newStore(t))
		got, err := s.Read(t.Context(), "counter-missing", es.ReadAll())
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("append assigns consecutive versions", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("a")

		out, err := s.Append(t.Context(), stream, es.ExpectNoStream(), incs(3))
		require.NoError(t, err)
		require.Equal(t, []es.Version{1, 2, 3}, versions(out))

		out, err = s.Append(t.Context(), stream, es.ExpectExact(3), incs(2))
		require.NoError(t, err)
		require.Equal(t, []es.Version{4, 5}, versions(out))

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		require.Equal(t, []es.Version{1, 2, 3, 4, 5}, versions(read))
		require.Equal(t, domain.Incremented{Inc: 1}, read[3].Data)
		require.Equal(t, "inc", read[0].Name)
		require.Equal(t, stream, read[0].StreamID)

		for i := 1; i < len(read); i++ {
			assert.LessOrEqual(t, read[i-1].Seq, read[i].Seq, "seq must not decrease with version")
		}
	})

	t.Run("read from version", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("b")
		_, err := s.Append(t.Context(), stream, es.ExpectAny(), incs(5))
		require.NoError(t, err)

		read, err := s.Read(t.Context(), stream, es.ReadFromVersion(3))
		require.NoError(t, err)
		require.Equal(t, []es.Version{3, 4, 5}, versions(read))

		read, err = s.Read(t.Context(), stream, es.ReadFromVersion(6))
		require.NoError(t, err)
		require.Empty(t, read)
	})

	t.Run("streams are independent", func(t *testing.T) {
		s := typed(newStore(t))
		_, err := s.Append(t.Context(), domain.StreamFor("x"), es.ExpectNoStream(), incs(2))
		require.NoError(t, err)
		out, err := s.Append(t.Context(), domain.StreamFor("y"), es.ExpectNoStream(), incs(1))
		require.NoError(t, err)
		require.Equal(t, []es.Version{1}, versions(out))
	})

	t.Run("no stream conflicts on existing stream", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("c")
		_, err := s.Append(t.Context(), stream, es.ExpectNoStream(), incs(1))
		require.NoError(t, err)

		_, err = s.Append(t.Context(), stream, es.ExpectNoStream(), incs(1))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		var conflict *es.ConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, es.Version(1), conflict.Actual)

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		require.Len(t, read, 1, "log must be unchanged")
	})

	t.Run("exact conflicts on stale version", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("d")
		_, err := s.Append(t.Context(), stream, es.ExpectNoStream(), incs(2))
		require.NoError(t, err)

		_, err = s.Append(t.Context(), stream, es.ExpectExact(1), incs(1))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
		_, err = s.Append(t.Context(), stream, es.ExpectExact(3), incs(1))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
		_, err = s.Append(t.Context(), domain.StreamFor("d-empty"), es.ExpectExact(1), incs(1))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		require.Len(t, read, 2)
	})

	t.Run("empty append is rejected", func(t *testing.T) {
		s := typed(newStore(t))
		_, err := s.Append(t.Context(), domain.StreamFor("e"), es.ExpectAny(), nil)
		require.ErrorIs(t, err, es.ErrStoreNoEvents)
	})

	t.Run("metadata and ids round trip", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("f")
		ev := incs(1)[0]
		ev.Metadata = &domain.Meta{Actor: "alice"}

		out, err := s.Append(t.Context(), stream, es.ExpectNoStream(), []es.Event[domain.Event, domain.Meta]{ev})
		require.NoError(t, err)

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		require.Len(t, read, 1)
		require.Equal(t, out[0].ID, read[0].ID)
		require.NotNil(t, read[0].Metadata)
		require.Equal(t, "alice", read[0].Metadata.Actor)
	})

	t.Run("generated ids are returned", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("g")
		in := incs(2)

		out, err := s.Append(t.Context(), stream, es.ExpectAny(), in)
		require.NoError(t, err)
		require.Len(t, out, 2)
		require.Equal(t, uuid.Nil, in[0].ID, "caller's events are left alone")

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		for i := range out {
			require.NotEqual(t, uuid.Nil, out[i].ID)
			require.Equal(t, read[i].ID, out[i].ID)
		}
		require.NotEqual(t, out[0].ID, out[1].ID)
	})

	t.Run("concurrent any appends all land", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("pile")

		const writers = 8
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := s.Append(t.Context(), stream, es.ExpectAny(), incs(2))
				if assert.NoError(t, err) && assert.Len(t, out, 2) {
					assert.Equal(t, out[0].Version+1, out[1].Version)
				}
			}()
		}
		wg.Wait()

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		want := make([]es.Version, 2*writers)
		for i := range want {
			want[i] = es.Version(i + 1)
		}
		require.Equal(t, want, versions(read))
	})

	t.Run("one winner per exact version", func(t *testing.T) {
		s := typed(newStore(t))
		stream := domain.StreamFor("race")
		_, err := s.Append(t.Context(), stream, es.ExpectNoStream(), incs(1))
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			won       atomic.Int32
			conflicts atomic.Int32
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Append(t.Context(), stream, es.ExpectExact(1), incs(1))
				switch {
				case err == nil:
					won.Add(1)
				case assert.ErrorIs(t, err, es.ErrConcurrencyConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, won.Load())
		require.EqualValues(t, writers-1, conflicts.Load())

		read, err := s.Read(t.Context(), stream, es.ReadAll())
		require.NoError(t, err)
		require.Equal(t, []es.Version{1, 2}, versions(read))
	})
}
