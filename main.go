package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/pflag"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/http_server"
	"github.com/tedsuo/ifrit/sigmon"

	"github.com/alphagov/paas-stats-tallier/pkg/alerts"
	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/coordinator"
	"github.com/alphagov/paas-stats-tallier/pkg/emitter"
	"github.com/alphagov/paas-stats-tallier/pkg/worker"
)

var (
	configFilePath string
	useStdoutSink  bool
	workerID       int

	logLevels = map[string]lager.LogLevel{
		"DEBUG": lager.DEBUG,
		"INFO":  lager.INFO,
		"ERROR": lager.ERROR,
		"FATAL": lager.FATAL,
	}
)

const (
	HaroldTimeout = 10 * time.Second
)

func init() {
	pflag.StringVar(&configFilePath, "config", "", "Location of the config file")
	pflag.BoolVar(&useStdoutSink, "stdout-sink", false, "Print metrics to stdout rather than send them to the configured sink")
	pflag.IntVar(&workerID, "worker-id", -1, "Run as the worker with this id")
	pflag.CommandLine.MarkHidden("worker-id")
}

var logger = lager.NewLogger("stats-tallier")

func initLogger(logLevel string) lager.Logger {
	laggerLogLevel, ok := logLevels[strings.ToUpper(logLevel)]
	if !ok {
		log.Fatal("Invalid log level: ", logLevel)
	}

	logger.RegisterSink(lager.NewWriterSink(os.Stdout, laggerLogLevel))

	return logger
}

func main() {
	pflag.Parse()

	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Fatal(fmt.Sprintf("Error loading config file: '%s'. ", configFilePath), err)
	}
	initLogger(cfg.LogLevel)

	if workerID >= 0 {
		runWorker(cfg)
		return
	}

	metricsEmitter, err := createEmitter(cfg)
	if err != nil {
		logger.Error("creating-emitter", err, lager.Data{"sink": cfg.Sink.Type})
		os.Exit(1)
	}

	executable, err := os.Executable()
	if err != nil {
		logger.Error("locating-executable", err)
		os.Exit(1)
	}

	runID := uuid.NewV4()
	coordinatorLogger := logger.Session("coordinator", lager.Data{"run_id": runID.String()})

	tallier := coordinator.New(
		cfg.Tallier,
		&worker.ProcessSpawner{
			Path:   executable,
			Args:   []string{"--config=" + configFilePath},
			Logger: coordinatorLogger.Session("spawner"),
		},
		metricsEmitter,
		coordinatorLogger,
	)
	if cfg.HeartbeatEnabled() {
		tallier.WithAlerter(alerts.NewHarold(cfg.Harold, HaroldTimeout), cfg.Heartbeat)
	}

	members := []grouper.Member{}
	if cfg.Debug.MetricsAddress != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		tallier.WithRegistry(registry)

		members = append(members, grouper.Member{
			Name:   "debugServer",
			Runner: http_server.New(cfg.Debug.MetricsAddress, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		})
	}
	members = append(members, grouper.Member{Name: "tallier", Runner: tallier})

	group := grouper.NewOrdered(os.Interrupt, members)

	monitor := ifrit.Invoke(sigmon.New(group))
	err = <-monitor.Wait()

	if err != nil {
		logger.Error("process-group-stopped-with-error", err)
		os.Exit(1)
	}
}

// runWorker is the entry point of the child processes started by the
// coordinator. Interrupts from the terminal are left to the coordinator,
// which stops its workers over the command channel.
func runWorker(cfg *config.Config) {
	signal.Ignore(os.Interrupt)

	workerLogger := logger.Session("worker", lager.Data{"worker_id": workerID})
	if err := worker.RunProcess(workerID, cfg.Tallier, workerLogger); err != nil {
		workerLogger.Error("worker-failed", err)
		os.Exit(1)
	}
}

func createEmitter(cfg *config.Config) (emitter.MetricsEmitter, error) {
	if useStdoutSink {
		return &emitter.StdOutEmitter{Writer: os.Stdout}, nil
	}

	switch cfg.Sink.Type {
	case config.StdoutSink:
		return &emitter.StdOutEmitter{Writer: os.Stdout}, nil
	case config.LoggregatorSink:
		return emitter.NewLoggregatorEmitter(
			cfg.LoggregatorEmitter,
			logger.Session("loggregator_emitter", lager.Data{"url": cfg.LoggregatorEmitter.MetronURL}),
		)
	case config.CloudWatchSink:
		awsSession := session.New(aws.NewConfig().WithRegion(cfg.CloudWatch.Region))
		return emitter.NewCloudWatchEmitter(
			awsSession,
			cfg.CloudWatch,
			logger.Session("cloudwatch_emitter", lager.Data{"namespace": cfg.CloudWatch.Namespace}),
		), nil
	default:
		return emitter.NewGraphiteEmitter(
			cfg.Graphite,
			logger.Session("graphite_emitter", lager.Data{"addr": cfg.Graphite.Addr}),
		), nil
	}
}
