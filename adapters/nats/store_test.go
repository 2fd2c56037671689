package nats

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/estests"
)

func newTestStore(t *testing.T, connect Connector) *EventStore {
	t.Helper()
	store, err := NewEventStore(EventStoreConfig{
		Connect:       connect,
		Log:           slog.Default(),
		SubjectPrefix: "esk.test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStore(t *testing.T) {
	connect := ReuseConnection(StartTestServer(t))

	var n int
	estests.RunStoreSuite(t, func(t *testing.T) es.EnvelopeStore {
		n++
		store, err := NewEventStore(EventStoreConfig{
			Connect:       connect,
			StreamName:    fmt.Sprintf("esk_suite_%d", n),
			SubjectPrefix: fmt.Sprintf("esk.suite%d", n),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestEventStore_streamInfo(t *testing.T) {
	store := newTestStore(t, StartTestServer(t))

	si, err := store.stream.Info(t.Context())
	require.NoError(t, err)
	require.Equal(t, defaultStreamName, si.Config.Name)
	require.True(t, si.Config.DenyDelete)
	require.True(t, si.Config.DenyPurge)
	require.Equal(t, []string{store.subjectPrefix + ".>"}, si.Config.Subjects)
	require.Equal(t, store.subjectPrefix+".patient-1", store.subject("patient-1"))
}

func TestValidateStreamID(t *testing.T) {
	require.NoError(t, ValidateStreamID("patient-42"))
	for _, bad := range []es.StreamID{"", "a.b", "a*", "a>", "a b", "a\tb"} {
		require.Error(t, ValidateStreamID(bad), "%q", bad)
	}
}
