// Package nats implements the event store and key-value ports on NATS
// JetStream.
package nats

import (
	"log/slog"
	"sync"

	natsgo "github.com/nats-io/nats.go"
)

// Release gives a connection back to its Connector. Calling it more than
// once is a no-op.
type Release = func()

// Connector hands out a connection and the Release that returns it.
type Connector func() (*natsgo.Conn, Release, error)

// orDefault falls back to the local default server.
func orDefault(c Connector) Connector {
	if c != nil {
		return c
	}
	return ConnectURL(natsgo.DefaultURL, nil)
}

// ReuseConnection leases one shared connection to every caller of the
// returned Connector. It is dialed on the first lease and closed when the
// last lease is released; the next lease dials again.
func ReuseConnection(connect Connector) Connector {
	var (
		mu     sync.Mutex
		nc     *natsgo.Conn
		closer Release
		leases int
	)
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		leases--
		if leases == 0 {
			closer()
			nc, closer = nil, nil
		}
	}
	return func() (*natsgo.Conn, Release, error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil {
			c, cl, err := connect()
			if err != nil {
				return nil, nil, err
			}
			nc, closer = c, cl
		}
		leases++
		return nc, sync.OnceFunc(release), nil
	}
}

// ConnectURL dials url for every lease. Connection state changes are logged
// to log, or the default logger when log is nil.
func ConnectURL(url string, log *slog.Logger, opts ...natsgo.Option) Connector {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("nats", url))
	return func() (*natsgo.Conn, Release, error) {
		base := []natsgo.Option{
			natsgo.Name("esk"),
			natsgo.MaxReconnects(3),
			natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
				if err != nil {
					log.Warn("nats disconnected", slog.Any("error", err))
				}
			}),
			natsgo.ReconnectHandler(func(*natsgo.Conn) { log.Info("nats reconnected") }),
		}
		nc, err := natsgo.Connect(url, append(base, opts...)...)
		if err != nil {
			return nil, nil, err
		}
		return nc, sync.OnceFunc(nc.Close), nil
	}
}
