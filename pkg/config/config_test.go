package config

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		config *Config
	)

	It("has parseable default config", func() {
		var config Config
		err := json.Unmarshal([]byte(defaultConfig), &config)
		Expect(err).ToNot(HaveOccurred())
		Expect(config.LogLevel).To(Equal("INFO"))
		Expect(config.Tallier.Port).To(Equal(8125))
		Expect(config.Tallier.NumWorkers).To(Equal(1))
		Expect(config.Tallier.Percentile).To(Equal(90))
		Expect(config.Heartbeat.Tag).To(Equal("tallier"))
	})

	Describe("LoadConfig", func() {
		It("loads a valid config file", func() {
			_, err := LoadConfig("./fixtures/valid.json")
			Expect(err).ToNot(HaveOccurred())
		})

		It("fails loading a invalid config file", func() {
			_, err := LoadConfig("./fixtures/invalid.json")
			Expect(err).To(HaveOccurred())
		})

		It("fails if no file is given", func() {
			_, err := LoadConfig("")
			Expect(err).To(MatchError("Must provide a config file"))
		})

		It("fills in defaults for missing values", func() {
			config, err := LoadConfig("./fixtures/valid.json")
			Expect(err).ToNot(HaveOccurred())
			Expect(config.Tallier.NumWorkers).To(Equal(2))
			Expect(config.Tallier.MaxDatagramSize).To(Equal(8192))
			Expect(config.Tallier.ReadBatchSize).To(Equal(32))
			Expect(config.Graphite.Timeout).To(Equal(10.0))
			Expect(config.Heartbeat.ExpiryMultiple).To(Equal(3.0))
			Expect(config.CloudWatch.Namespace).To(Equal("Tallier"))
		})
	})

	Describe("Validate", func() {
		BeforeEach(func() {
			var err error
			config, err = LoadConfig("./fixtures/valid.json")
			Expect(err).ToNot(HaveOccurred())
		})

		It("does not return error if all sections are valid", func() {
			err := config.Validate()
			Expect(err).ToNot(HaveOccurred())
		})

		It("returns error if LogLevel is not valid", func() {
			config.LogLevel = ""

			err := config.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("returns error if there are no workers", func() {
			config.Tallier.NumWorkers = 0

			err := config.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("returns error if the flush interval is not positive", func() {
			config.Tallier.FlushInterval = 0

			err := config.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("returns error if the port is out of range", func() {
			config.Tallier.Port = 70000

			err := config.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("returns error if the sink type is unknown", func() {
			config.Sink.Type = "carbon-copy"

			err := config.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("returns error if the graphite address is unparsable", func() {
			config.Graphite.Addr = "graphite.example.com"

			err := config.Validate()
			Expect(err).To(MatchError(ContainSubstring("invalid graphite address")))
		})

		It("requires the loggregator certificates for the loggregator sink", func() {
			config.Sink.Type = LoggregatorSink

			err := config.Validate()
			Expect(err).To(HaveOccurred())

			config.LoggregatorEmitter = LoggregatorEmitterConfig{
				MetronURL:  "localhost:3458",
				CACertPath: "ca.crt",
				CertPath:   "client.crt",
				KeyPath:    "client.key",
			}
			err = config.Validate()
			Expect(err).ToNot(HaveOccurred())
		})

		It("requires a region for the cloudwatch sink", func() {
			config.Sink.Type = CloudWatchSink
			config.CloudWatch.Region = ""

			err := config.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("does not require harold when heartbeats are disabled", func() {
			config.Heartbeat.Enabled = false
			config.Harold.Port = 0

			err := config.Validate()
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("heartbeats", func() {
		BeforeEach(func() {
			var err error
			config, err = LoadConfig("./fixtures/valid.json")
			Expect(err).ToNot(HaveOccurred())
		})

		It("are enabled when harold is configured", func() {
			Expect(config.HeartbeatEnabled()).To(BeTrue())
		})

		It("are disabled without a harold host", func() {
			config.Harold.Host = ""
			Expect(config.HeartbeatEnabled()).To(BeFalse())
		})
	})

	Describe("TallierConfig", func() {
		It("joins the interface and port", func() {
			Expect(TallierConfig{Interface: "127.0.0.1", Port: 8125}.Address()).To(Equal("127.0.0.1:8125"))
			Expect(TallierConfig{Port: 8125}.Address()).To(Equal(":8125"))
		})

		It("converts fractional seconds to durations", func() {
			c := TallierConfig{FlushInterval: 0.5, WorkerTimeout: 2}
			Expect(c.FlushIntervalDuration()).To(Equal(500 * time.Millisecond))
			Expect(c.WorkerTimeoutDuration()).To(Equal(2 * time.Second))
		})
	})
})
