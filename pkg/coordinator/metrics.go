package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// selfMetrics are exported on the debug endpoint. A nil registerer leaves
// them unregistered but still usable.
type selfMetrics struct {
	flushes           prometheus.Counter
	flushDuration     prometheus.Histogram
	sinkFailures      prometheus.Counter
	heartbeatFailures prometheus.Counter
	workerTimeouts    *prometheus.CounterVec
	statsEmitted      prometheus.Counter
	workers           prometheus.Gauge
}

func newSelfMetrics(registerer prometheus.Registerer) *selfMetrics {
	m := &selfMetrics{
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallier",
			Name:      "flushes_total",
			Help:      "Flush cycles run.",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tallier",
			Name:      "flush_duration_seconds",
			Help:      "Time spent collecting, reducing and sending one flush.",
			Buckets:   prometheus.DefBuckets,
		}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallier",
			Name:      "sink_failures_total",
			Help:      "Flushes whose metrics could not be sent to the sink.",
		}),
		heartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallier",
			Name:      "heartbeat_failures_total",
			Help:      "Heartbeats that could not be delivered.",
		}),
		workerTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallier",
			Name:      "worker_timeouts_total",
			Help:      "Flush requests a worker did not answer in time.",
		}, []string{"worker"}),
		statsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallier",
			Name:      "stats_emitted_total",
			Help:      "Metric lines handed to the sink.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tallier",
			Name:      "workers",
			Help:      "Workers reading from the shared socket.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.flushes,
			m.flushDuration,
			m.sinkFailures,
			m.heartbeatFailures,
			m.workerTimeouts,
			m.statsEmitted,
			m.workers,
		)
	}

	return m
}
