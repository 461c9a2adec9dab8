// Package coordinator owns the shared stats socket, runs the workers that
// read from it and periodically turns their snapshots into metrics.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
	"github.com/alphagov/paas-stats-tallier/pkg/alerts"
	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/emitter"
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
	"github.com/alphagov/paas-stats-tallier/pkg/utils"
	"github.com/alphagov/paas-stats-tallier/pkg/worker"
)

// Coordinator ...
type Coordinator struct {
	tallierConfig  config.TallierConfig
	spawner        worker.Spawner
	metricsEmitter emitter.MetricsEmitter
	logger         lager.Logger
	clock          clock.Clock

	alerter   alerts.Alerter
	heartbeat config.HeartbeatConfig

	registerer prometheus.Registerer
	metrics    *selfMetrics

	conn      *net.UDPConn
	workers   []worker.Handle
	lastFlush time.Time
	numStats  int64
}

// New ...
func New(
	tallierConfig config.TallierConfig,
	spawner worker.Spawner,
	metricsEmitter emitter.MetricsEmitter,
	logger lager.Logger,
) *Coordinator {
	return &Coordinator{
		tallierConfig:  tallierConfig,
		spawner:        spawner,
		metricsEmitter: metricsEmitter,
		logger:         logger,
		clock:          clock.NewClock(),
	}
}

// WithClock ...
func (c *Coordinator) WithClock(clock clock.Clock) *Coordinator {
	c.clock = clock
	return c
}

// WithAlerter sends a heartbeat after every successful flush, and an alert
// when a worker stops answering.
func (c *Coordinator) WithAlerter(alerter alerts.Alerter, heartbeat config.HeartbeatConfig) *Coordinator {
	c.alerter = alerter
	c.heartbeat = heartbeat
	return c
}

// WithRegistry registers the coordinator's own metrics.
func (c *Coordinator) WithRegistry(registerer prometheus.Registerer) *Coordinator {
	c.registerer = registerer
	return c
}

// Addr is the address of the shared socket once Run has signalled ready.
func (c *Coordinator) Addr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Run binds the socket, starts the workers and flushes every interval
// until signalled.
func (c *Coordinator) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	if c.metrics == nil {
		c.metrics = newSelfMetrics(c.registerer)
	}

	if err := c.start(); err != nil {
		c.logger.Error("start-failed", err)
		return err
	}
	close(ready)

	interval := c.tallierConfig.FlushIntervalDuration()
	next := c.lastFlush.Add(interval)
	c.logger.Info("started", lager.Data{
		"addr":           c.conn.LocalAddr().String(),
		"workers":        len(c.workers),
		"flush_interval": interval.String(),
	})

	for {
		wait := next.Sub(c.clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer := c.clock.NewTimer(wait)

		select {
		case <-timer.C():
			c.flush()
			next = next.Add(interval)
		case signal := <-signals:
			timer.Stop()
			c.logger.Info("signalled", lager.Data{"signal": signal.String()})
			return c.shutdown()
		}
	}
}

func (c *Coordinator) start() error {
	if c.tallierConfig.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be at least 1, got %d", c.tallierConfig.NumWorkers)
	}

	conn, err := c.bind()
	if err != nil {
		return err
	}
	c.conn = conn

	for id := 0; id < c.tallierConfig.NumWorkers; id++ {
		handle, err := c.spawner.Spawn(id, conn)
		if err != nil {
			c.logger.Error("spawn-failed", err, lager.Data{"worker_id": id})
			for _, started := range c.workers {
				started.Kill()
				started.Wait()
			}
			c.workers = nil
			conn.Close()
			return err
		}
		c.workers = append(c.workers, handle)
	}
	c.metrics.workers.Set(float64(len(c.workers)))

	c.lastFlush = c.clock.Now()
	return nil
}

func (c *Coordinator) bind() (*net.UDPConn, error) {
	receiveBufferSize := c.tallierConfig.ReceiveBufferSize

	listenConfig := net.ListenConfig{
		Control: func(network, address string, rawConn syscall.RawConn) error {
			var sockErr error
			err := rawConn.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr == nil && receiveBufferSize > 0 {
					sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBufferSize)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	packetConn, err := listenConfig.ListenPacket(context.Background(), "udp4", c.tallierConfig.Address())
	if err != nil {
		return nil, err
	}
	return packetConn.(*net.UDPConn), nil
}

func (c *Coordinator) flush() {
	started := c.clock.Now()
	logger := c.logger.Session("flush")
	logger.Info("started")

	report := Aggregate(c.collect(logger))

	now := c.clock.Now()
	interval := now.Sub(c.lastFlush).Seconds()
	c.lastFlush = now
	if interval <= 0 {
		interval = c.tallierConfig.FlushInterval
	}

	c.numStats += int64(len(report.Counters) + len(report.Timers))

	timestamp := now.Unix()
	m := Render(report, timestamp, interval, c.percentile())
	m = append(m,
		metrics.Metric{Key: "stats.tallier.num_stats", Value: float64(c.numStats), Timestamp: timestamp, Unit: metrics.UnitGauge},
		metrics.Metric{Key: "stats.tallier.num_workers", Value: float64(c.tallierConfig.NumWorkers), Timestamp: timestamp, Unit: metrics.UnitGauge},
	)

	c.metrics.flushes.Inc()
	defer func() {
		c.metrics.flushDuration.Observe(c.clock.Since(started).Seconds())
	}()

	if err := c.metricsEmitter.Emit(m); err != nil {
		c.metrics.sinkFailures.Inc()
		logger.Error("sink-failed", err, lager.Data{"metrics": len(m)})
		return
	}
	c.metrics.statsEmitted.Add(float64(len(m)))
	logger.Info("sent", lager.Data{
		"metrics":  len(m),
		"messages": report.Counters[accumulation.MessagesTotalKey],
		"interval": interval,
	})

	c.sendHeartbeat(logger)
}

// collect asks every worker in turn for its snapshot. A worker that fails
// or times out contributes nothing to this cycle.
func (c *Coordinator) collect(logger lager.Logger) []*accumulation.State {
	snapshots := make([]*accumulation.State, 0, len(c.workers))
	timeout := c.tallierConfig.WorkerTimeoutDuration()

	for _, handle := range c.workers {
		handle := handle
		var (
			snapshot *accumulation.State
			err      error
		)
		timedOut := utils.WithTimeout(timeout, func() {
			snapshot, err = handle.Flush()
		})

		if timedOut {
			c.metrics.workerTimeouts.WithLabelValues(fmt.Sprint(handle.ID())).Inc()
			logger.Error("worker-unresponsive", errors.New("flush timed out"), lager.Data{
				"worker_id": handle.ID(),
				"timeout":   timeout.String(),
			})
			c.alert(logger, fmt.Sprintf("tallier worker %d did not answer a flush within %s", handle.ID(), timeout))
			continue
		}
		if err != nil {
			logger.Error("worker-flush-failed", err, lager.Data{"worker_id": handle.ID()})
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots
}

func (c *Coordinator) sendHeartbeat(logger lager.Logger) {
	if c.alerter == nil || !c.heartbeat.Enabled {
		return
	}

	expiry := int(c.tallierConfig.FlushInterval * c.heartbeat.ExpiryMultiple)
	if err := c.alerter.Heartbeat(c.heartbeat.Tag, expiry); err != nil {
		c.metrics.heartbeatFailures.Inc()
		logger.Error("heartbeat-failed", err, lager.Data{"tag": c.heartbeat.Tag})
		return
	}
	logger.Debug("heartbeat-sent", lager.Data{"tag": c.heartbeat.Tag, "expiry": expiry})
}

func (c *Coordinator) alert(logger lager.Logger, message string) {
	if c.alerter == nil {
		return
	}
	if err := c.alerter.Alert(c.heartbeat.Tag, message); err != nil {
		logger.Error("alert-failed", err)
	}
}

// shutdown closes the socket, then asks each worker to stop and waits for
// it to exit. A worker that fails to answer within worker_timeout is
// killed.
func (c *Coordinator) shutdown() error {
	logger := c.logger.Session("shutdown")

	var result error
	if err := c.conn.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing socket: %s", err))
	}

	timeout := c.tallierConfig.WorkerTimeoutDuration()
	counts := make([]int64, 0, len(c.workers))
	var total int64
	for _, handle := range c.workers {
		handle := handle
		var (
			count int64
			err   error
		)
		timedOut := utils.WithTimeout(timeout, func() {
			count, err = handle.Shutdown()
		})

		if timedOut {
			logger.Error("worker-unresponsive", errors.New("shutdown timed out"), lager.Data{
				"worker_id": handle.ID(),
				"timeout":   timeout.String(),
			})
			result = multierror.Append(result, fmt.Errorf("worker %d: shutdown timed out after %s", handle.ID(), timeout))
			handle.Kill()
			counts = append(counts, 0)
			continue
		}
		if err != nil {
			logger.Error("worker-shutdown-failed", err, lager.Data{"worker_id": handle.ID()})
			result = multierror.Append(result, fmt.Errorf("worker %d: %s", handle.ID(), err))
			handle.Kill()
		}
		counts = append(counts, count)
		total += count
	}

	for _, handle := range c.workers {
		if err := handle.Wait(); err != nil {
			logger.Error("worker-exit-failed", err, lager.Data{"worker_id": handle.ID()})
		}
	}

	logger.Info("complete", lager.Data{"messages": counts, "total": total})
	return result
}

func (c *Coordinator) percentile() int {
	if c.tallierConfig.Percentile <= 0 {
		return 90
	}
	return c.tallierConfig.Percentile
}
