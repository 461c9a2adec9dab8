package emitter

import (
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"

	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

// PutMetricData accepts at most this many datums per call.
const cloudWatchBatchSize = 20

var cloudWatchUnits = map[string]string{
	metrics.UnitCount: cloudwatch.StandardUnitCount,
	metrics.UnitRate:  cloudwatch.StandardUnitCountSecond,
	metrics.UnitMs:    cloudwatch.StandardUnitMilliseconds,
	metrics.UnitGauge: cloudwatch.StandardUnitNone,
}

// CloudWatchEmitter publishes metrics as CloudWatch custom metrics.
type CloudWatchEmitter struct {
	client    cloudwatchiface.CloudWatchAPI
	namespace string
	logger    lager.Logger
}

func NewCloudWatchEmitter(session client.ConfigProvider, cloudWatchConfig config.CloudWatchConfig, logger lager.Logger) *CloudWatchEmitter {
	return NewCloudWatchEmitterWithClient(cloudwatch.New(session), cloudWatchConfig.Namespace, logger)
}

func NewCloudWatchEmitterWithClient(client cloudwatchiface.CloudWatchAPI, namespace string, logger lager.Logger) *CloudWatchEmitter {
	return &CloudWatchEmitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// Emit sends the metrics in batches, stopping at the first failed batch.
func (e *CloudWatchEmitter) Emit(m []metrics.Metric) error {
	for start := 0; start < len(m); start += cloudWatchBatchSize {
		end := start + cloudWatchBatchSize
		if end > len(m) {
			end = len(m)
		}

		data := make([]*cloudwatch.MetricDatum, 0, end-start)
		for _, metric := range m[start:end] {
			unit, ok := cloudWatchUnits[metric.Unit]
			if !ok {
				unit = cloudwatch.StandardUnitNone
			}
			data = append(data, &cloudwatch.MetricDatum{
				MetricName: aws.String(metric.Key),
				Timestamp:  aws.Time(time.Unix(metric.Timestamp, 0)),
				Value:      aws.Float64(metric.Value),
				Unit:       aws.String(unit),
			})
		}

		_, err := e.client.PutMetricData(&cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(e.namespace),
			MetricData: data,
		})
		if err != nil {
			return err
		}
		e.logger.Debug("put-metric-data", lager.Data{"metrics": len(data)})
	}
	return nil
}
