package coordinator

import (
	"fmt"
	"sort"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

// Aggregate merges the snapshots of one flush cycle and adds the totals
// of the per-worker message and byte counters.
func Aggregate(snapshots []*accumulation.State) *accumulation.State {
	report := accumulation.New()
	for _, snapshot := range snapshots {
		report.Merge(snapshot)
	}

	report.Counters[accumulation.MessagesTotalKey] = report.SumCounters(accumulation.MessagesKeyPrefix)
	report.Counters[accumulation.BytesTotalKey] = report.SumCounters(accumulation.BytesKeyPrefix)

	return report
}

// Render reduces an aggregate report to graphite metrics. interval is the
// number of seconds the report covers and must be positive. Timer value
// slices are sorted in place.
func Render(report *accumulation.State, timestamp int64, interval float64, percentile int) []metrics.Metric {
	m := make([]metrics.Metric, 0, 2*len(report.Counters)+6*len(report.Timers))
	metric := func(key string, value float64, unit string) {
		m = append(m, metrics.Metric{Key: key, Value: value, Timestamp: timestamp, Unit: unit})
	}

	for _, key := range sortedKeys(report.Counters) {
		value := report.Counters[key]
		metric("stats."+key, value/interval, metrics.UnitRate)
		metric("stats_counts."+key, value, metrics.UnitCount)
	}

	for _, key := range sortedKeys(report.Timers) {
		values := report.Timers[key]
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)

		var sum float64
		for _, v := range values {
			sum += v
		}
		count := float64(len(values))

		prefix := "stats.timers." + key
		metric(prefix+".lower", values[0], metrics.UnitMs)
		metric(prefix+".upper", values[len(values)-1], metrics.UnitMs)
		metric(fmt.Sprintf("%s.upper_%d", prefix, percentile), values[percentileIndex(len(values), percentile)], metrics.UnitMs)
		metric(prefix+".mean", sum/count, metrics.UnitMs)
		metric(prefix+".count", count, metrics.UnitCount)
		metric(prefix+".rate", count/interval, metrics.UnitRate)
	}

	return m
}

// percentileIndex is floor(n*p/100), kept inside the slice.
func percentileIndex(n, percentile int) int {
	i := n * percentile / 100
	if i >= n {
		i = n - 1
	}
	return i
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
