package accumulation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
	"github.com/alphagov/paas-stats-tallier/pkg/protocol"
)

var _ = Describe("State", func() {
	var state *accumulation.State

	BeforeEach(func() {
		state = accumulation.New()
	})

	It("starts empty", func() {
		Expect(state.Empty()).To(BeTrue())
	})

	Describe("Add", func() {
		It("scales counters by the inverse sample rate", func() {
			sample := protocol.Sample{Key: "key", Value: 1, Kind: protocol.Counter, SampleRate: 0.5}
			state.Add(sample)
			Expect(state.Counters).To(HaveKeyWithValue("key", 2.0))

			sample.SampleRate = 1.0
			state.Add(sample)
			Expect(state.Counters).To(HaveKeyWithValue("key", 3.0))
		})

		It("appends timer values unchanged and in order", func() {
			for i := 0; i < 3; i++ {
				state.Add(protocol.Sample{Key: "key", Value: float64(i), Kind: protocol.Timer, SampleRate: 0.1})
			}
			Expect(state.Timers).To(HaveKeyWithValue("key", []float64{0, 1, 2}))
			Expect(state.Counters).To(BeEmpty())
		})

		It("keeps the same key as both a counter and a timer", func() {
			state.Add(protocol.Sample{Key: "key", Value: 4, Kind: protocol.Counter, SampleRate: 1})
			state.Add(protocol.Sample{Key: "key", Value: 5, Kind: protocol.Timer, SampleRate: 1})
			Expect(state.Counters).To(HaveKeyWithValue("key", 4.0))
			Expect(state.Timers).To(HaveKeyWithValue("key", []float64{5}))
		})

		It("works on a zero value state", func() {
			zero := &accumulation.State{}
			zero.Add(protocol.Sample{Key: "key", Value: 1, Kind: protocol.Counter, SampleRate: 1})
			Expect(zero.Counters).To(HaveKeyWithValue("key", 1.0))
		})
	})

	Describe("Merge", func() {
		It("sums counters and concatenates timers", func() {
			state.Merge(&accumulation.State{
				Counters: map[string]float64{"a": 1},
				Timers:   map[string][]float64{"t1": {1, 2, 3}},
			})
			state.Merge(&accumulation.State{
				Counters: map[string]float64{"a": 3, "b": 4},
				Timers:   map[string][]float64{"t1": {5, 6}, "t2": {6, 7}},
			})

			Expect(state.Counters).To(Equal(map[string]float64{"a": 4, "b": 4}))
			Expect(state.Timers).To(Equal(map[string][]float64{
				"t1": {1, 2, 3, 5, 6},
				"t2": {6, 7},
			}))
		})

		It("ignores nil states and nil maps", func() {
			state.Merge(nil)
			state.Merge(&accumulation.State{})
			Expect(state.Empty()).To(BeTrue())
		})
	})

	It("sums counters by prefix", func() {
		state.Counters[accumulation.MessagesKey(0)] = 2
		state.Counters[accumulation.MessagesKey(1)] = 3
		state.Counters[accumulation.BytesKey(0)] = 100
		state.Counters["other"] = 7

		Expect(state.SumCounters(accumulation.MessagesKeyPrefix)).To(Equal(5.0))
		Expect(state.SumCounters(accumulation.BytesKeyPrefix)).To(Equal(100.0))
	})

	It("names the self-observability keys after the worker", func() {
		Expect(accumulation.MessagesKey(3)).To(Equal("tallier.messages.child_3"))
		Expect(accumulation.BytesKey(3)).To(Equal("tallier.bytes.child_3"))
	})
})
