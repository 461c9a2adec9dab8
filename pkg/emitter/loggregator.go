package emitter

import (
	"code.cloudfoundry.org/go-loggregator"
	"code.cloudfoundry.org/lager/v3"

	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

const loggregatorSourceID = "stats-tallier"

type LoggregatorEmitter struct {
	loggregatorIngressClient *loggregator.IngressClient
	logger                   lager.Logger
}

func NewLoggregatorEmitter(
	emitterConfig config.LoggregatorEmitterConfig,
	logger lager.Logger,
) (*LoggregatorEmitter, error) {
	tlsConfig, err := loggregator.NewIngressTLSConfig(
		emitterConfig.CACertPath,
		emitterConfig.CertPath,
		emitterConfig.KeyPath,
	)
	if err != nil {
		logger.Error("creating loggregator TLS config", err)
		return nil, err
	}

	client, err := loggregator.NewIngressClient(
		tlsConfig,
		loggregator.WithAddr(emitterConfig.MetronURL),
		loggregator.WithTag("origin", "stats-tallier"),
	)
	if err != nil {
		logger.Error("Could not create loggregator client", err, lager.Data{"metron_url": emitterConfig.MetronURL})
		return nil, err
	}

	return &LoggregatorEmitter{
		loggregatorIngressClient: client,
		logger:                   logger,
	}, nil
}

// Emit hands every metric to the ingress client as a gauge. The client
// batches and sends in the background, so delivery failures are not seen
// here.
func (e *LoggregatorEmitter) Emit(m []metrics.Metric) error {
	for _, metric := range m {
		e.loggregatorIngressClient.EmitGauge(
			loggregator.WithGaugeValue(metric.Key, metric.Value, metric.Unit),
			loggregator.WithGaugeSourceInfo(loggregatorSourceID, "0"),
		)
	}
	return nil
}
