package emitter

import (
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

// MetricsEmitter pushes the metrics of one flush to a sink.
type MetricsEmitter interface {
	Emit(m []metrics.Metric) error
}
