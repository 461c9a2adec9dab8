package emitter_test

import (
	"os"

	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/emitter"
	"github.com/alphagov/paas-stats-tallier/pkg/helpers"
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoggregatorEmitter", func() {
	var (
		certs              helpers.Certificates
		server             *helpers.FakeLoggregatorIngressServer
		loggregatorEmitter *emitter.LoggregatorEmitter
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "tallier-certs-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		certs, err = helpers.GenerateCertificates(dir)
		Expect(err).NotTo(HaveOccurred())

		server, err = helpers.NewFakeLoggregatorIngressServer(
			certs.ServerCert,
			certs.ServerKey,
			certs.CACert,
		)
		Expect(err).NotTo(HaveOccurred())

		err = server.Start()
		Expect(err).NotTo(HaveOccurred())

		loggregatorEmitter, err = emitter.NewLoggregatorEmitter(
			config.LoggregatorEmitterConfig{
				MetronURL:  server.Addr,
				CACertPath: certs.CACert,
				CertPath:   certs.ClientCert,
				KeyPath:    certs.ClientKey,
			},
			logger,
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Stop()
	})

	It("should fail if any of the cert files is missing", func() {
		var err error
		_, err = emitter.NewLoggregatorEmitter(config.LoggregatorEmitterConfig{
			MetronURL:  "localhost:123",
			CACertPath: "missing",
			CertPath:   certs.ClientCert,
			KeyPath:    certs.ClientKey,
		}, logger)
		Expect(err).To(HaveOccurred())
		_, err = emitter.NewLoggregatorEmitter(config.LoggregatorEmitterConfig{
			MetronURL:  "localhost:123",
			CACertPath: certs.CACert,
			CertPath:   "missing",
			KeyPath:    certs.ClientKey,
		}, logger)
		Expect(err).To(HaveOccurred())
	})

	It("should emit every metric as a gauge", func() {
		err := loggregatorEmitter.Emit([]metrics.Metric{
			{Key: "stats_counts.x", Value: 5, Unit: metrics.UnitCount},
			{Key: "stats.timers.t.mean", Value: 2.5, Unit: metrics.UnitMs},
		})
		Expect(err).NotTo(HaveOccurred())

		envelopes, err := server.GetEnvelopes()
		Expect(err).NotTo(HaveOccurred())
		Expect(envelopes).To(HaveLen(2))

		Expect(envelopes[0].GetSourceId()).To(Equal("stats-tallier"))
		Expect(envelopes[0].GetGauge().GetMetrics()).To(HaveKey("stats_counts.x"))
		Expect(envelopes[0].GetGauge().GetMetrics()["stats_counts.x"].Value).To(Equal(5.0))
		Expect(envelopes[0].GetGauge().GetMetrics()["stats_counts.x"].Unit).To(Equal("count"))

		Expect(envelopes[1].GetGauge().GetMetrics()).To(HaveKey("stats.timers.t.mean"))
		Expect(envelopes[1].GetGauge().GetMetrics()["stats.timers.t.mean"].Unit).To(Equal("ms"))
	})
})
