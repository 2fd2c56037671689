package nats

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartJetStream runs a throwaway JetStream server in a container for the
// lifetime of t and returns its URL. It skips t in short mode.
func StartJetStream(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("jetstream container skipped in short mode")
	}

	c, err := testcontainers.Run(
		t.Context(), "nats:latest",
		testcontainers.WithCmd("-js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Errorf("terminate jetstream container: %v", err)
		}
	})

	endpoint, err := c.PortEndpoint(t.Context(), "4222/tcp", "nats")
	require.NoError(t, err)
	return endpoint
}

// StartTestServer is StartJetStream wrapped in a Connector.
func StartTestServer(t *testing.T) Connector {
	return ConnectURL(StartJetStream(t), nil)
}
