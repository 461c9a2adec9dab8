package emitter

import (
	"fmt"
	"io"

	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

// StdOutEmitter prints graphite lines instead of sending them anywhere.
type StdOutEmitter struct {
	Writer io.Writer
}

// Emit ...
func (s *StdOutEmitter) Emit(m []metrics.Metric) error {
	for _, metric := range m {
		if _, err := fmt.Fprintln(s.Writer, metric.String()); err != nil {
			return err
		}
	}
	return nil
}
