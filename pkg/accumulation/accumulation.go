// Package accumulation holds the counters and timer values gathered
// between two flushes.
package accumulation

import (
	"fmt"
	"strings"

	"github.com/alphagov/paas-stats-tallier/pkg/protocol"
)

// Self-observability keys synthesized by the listeners and the coordinator.
const (
	MessagesKeyPrefix = "tallier.messages.child_"
	BytesKeyPrefix    = "tallier.bytes.child_"
	MessagesTotalKey  = "tallier.messages.total"
	BytesTotalKey     = "tallier.bytes.total"
)

// MessagesKey is the counter holding the datagrams received by a worker
// since its previous flush.
func MessagesKey(workerID int) string {
	return fmt.Sprintf("%s%d", MessagesKeyPrefix, workerID)
}

// BytesKey is the counter holding the bytes received by a worker since its
// previous flush.
func BytesKey(workerID int) string {
	return fmt.Sprintf("%s%d", BytesKeyPrefix, workerID)
}

// State is the aggregate of all samples seen since the last flush. It is
// not safe for concurrent use; the owner hands it over as a whole.
type State struct {
	Counters map[string]float64   `cbor:"counters"`
	Timers   map[string][]float64 `cbor:"timers"`
}

// New returns an empty state.
func New() *State {
	return &State{
		Counters: map[string]float64{},
		Timers:   map[string][]float64{},
	}
}

// Add folds a sample into the state. Counters are scaled by the inverse of
// the sample rate; timer values are appended unchanged.
func (s *State) Add(sample protocol.Sample) {
	s.ensureMaps()

	switch sample.Kind {
	case protocol.Timer:
		s.Timers[sample.Key] = append(s.Timers[sample.Key], sample.Value)
	default:
		s.Counters[sample.Key] += sample.Value / sample.SampleRate
	}
}

// Merge sums the other state's counters into this one and concatenates its
// timer values.
func (s *State) Merge(other *State) {
	if other == nil {
		return
	}
	s.ensureMaps()

	for key, value := range other.Counters {
		s.Counters[key] += value
	}
	for key, values := range other.Timers {
		s.Timers[key] = append(s.Timers[key], values...)
	}
}

// Empty reports whether the state holds no counters and no timers.
func (s *State) Empty() bool {
	return len(s.Counters) == 0 && len(s.Timers) == 0
}

// SumCounters adds up every counter whose key starts with prefix.
func (s *State) SumCounters(prefix string) float64 {
	var total float64
	for key, value := range s.Counters {
		if strings.HasPrefix(key, prefix) {
			total += value
		}
	}
	return total
}

func (s *State) ensureMaps() {
	if s.Counters == nil {
		s.Counters = map[string]float64{}
	}
	if s.Timers == nil {
		s.Timers = map[string][]float64{}
	}
}
