// Package prometheus reports es.ESMetrics to a Prometheus registry.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/esk/core/metrics"
)

// latencyBuckets span a cached fold (sub-millisecond) up to a slow remote
// append, in seconds.
var latencyBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

func newTimer(o prometheus.Observer) metrics.Timer {
	t := prometheus.NewTimer(o)
	return metrics.TimerFunc(func() { t.ObserveDuration() })
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
