package metrics

import "fmt"

// Units attached to reported metrics.
const (
	UnitCount = "count"
	UnitRate  = "rate"
	UnitMs    = "ms"
	UnitGauge = "gauge"
)

// Metric ...
type Metric struct {
	Key       string
	Timestamp int64
	Value     float64
	Unit      string
}

// String renders the metric as a graphite plaintext line, without the
// trailing newline.
func (m Metric) String() string {
	return fmt.Sprintf("%s %f %d", m.Key, m.Value, m.Timestamp)
}
