package proj

import (
	"fmt"
	"log/slog"

	"github.com/codewandler/esk/core/es"
)

// KeyFunc derives the read-model key of the entity a stream belongs to.
type KeyFunc func(stream es.StreamID) (string, error)

// StreamKey uses the stream id itself as key.
func StreamKey(stream es.StreamID) (string, error) {
	if stream == "" {
		return "", fmt.Errorf("stream id is empty")
	}
	return string(stream), nil
}

type (
	options struct {
		name    string
		log     *slog.Logger
		key     KeyFunc
		metrics es.ESMetrics
	}

	Option func(*options)
)

// WithName names the projection in logs and metrics.
func WithName(name string) Option { return func(o *options) { o.name = name } }

func WithLog(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithKeyFunc sets how entity keys are derived from stream ids (default StreamKey).
func WithKeyFunc(fn KeyFunc) Option { return func(o *options) { o.key = fn } }

func WithMetrics(m es.ESMetrics) Option { return func(o *options) { o.metrics = m } }
