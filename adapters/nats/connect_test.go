package nats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNats_Connect(t *testing.T) {
	connect := StartTestServer(t)
	nc1, disconnect1, err := connect()
	require.NoError(t, err)
	require.Equal(t, "CONNECTED", nc1.Status().String())

	nc2, disconnect2, err := connect()
	require.NoError(t, err)
	require.NotSame(t, nc1, nc2)

	disconnect1()
	disconnect2()
	require.Equal(t, "CLOSED", nc1.Status().String())
}

func TestNats_ReuseConnection(t *testing.T) {
	connect := ReuseConnection(StartTestServer(t))

	nc1, release1, err := connect()
	require.NoError(t, err)
	nc2, release2, err := connect()
	require.NoError(t, err)
	require.Same(t, nc1, nc2)

	release1()
	require.Equal(t, "CONNECTED", nc2.Status().String(), "still leased")
	release2()
	require.Equal(t, "CLOSED", nc1.Status().String())

	nc3, release3, err := connect()
	require.NoError(t, err)
	defer release3()
	require.NotSame(t, nc1, nc3)
	require.Equal(t, "CONNECTED", nc3.Status().String())
}

func TestNats_releaseIsIdempotent(t *testing.T) {
	connect := ReuseConnection(StartTestServer(t))

	nc, release1, err := connect()
	require.NoError(t, err)
	_, release2, err := connect()
	require.NoError(t, err)

	release1()
	release1()
	require.Equal(t, "CONNECTED", nc.Status().String(), "a second release of the same lease does not count")
	release2()
	require.Equal(t, "CLOSED", nc.Status().String())
}
