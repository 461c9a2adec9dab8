// Package worker bridges a listener to the coordinator over a duplex
// command channel, and starts workers either as goroutines or as child
// processes sharing the coordinator's socket.
package worker

import (
	"errors"
	"io"
	"net"

	"code.cloudfoundry.org/lager/v3"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
)

// Flusher is the part of a listener a worker drives.
type Flusher interface {
	Flush() *accumulation.State
	MessageCount() int64
	Stop() error
}

// Worker answers coordinator commands on behalf of one listener.
type Worker struct {
	listener Flusher
	logger   lager.Logger
}

// New ...
func New(listener Flusher, logger lager.Logger) *Worker {
	return &Worker{
		listener: listener,
		logger:   logger,
	}
}

// Serve handles commands read from conn until a shutdown is requested or
// the coordinator goes away. The listener is stopped in both cases.
func (w *Worker) Serve(conn io.ReadWriter) error {
	decoder := decMode.NewDecoder(conn)
	encoder := encMode.NewEncoder(conn)

	for {
		var request Request
		if err := decoder.Decode(&request); err != nil {
			w.stopListener()
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				w.logger.Info("coordinator-gone")
				return nil
			}
			w.logger.Error("reading-command", err)
			return err
		}

		switch request.Command {
		case FlushCommand:
			snapshot := w.listener.Flush()
			w.logger.Debug("flushed", lager.Data{
				"counters": len(snapshot.Counters),
				"timers":   len(snapshot.Timers),
			})
			if err := encoder.Encode(Response{Snapshot: snapshot}); err != nil {
				w.logger.Error("sending-snapshot", err)
				w.stopListener()
				return err
			}

		case ShutdownCommand:
			count := w.listener.MessageCount()
			w.logger.Info("shutting-down", lager.Data{"messages": count})
			err := encoder.Encode(Response{MessageCount: count})
			w.stopListener()
			if err != nil {
				w.logger.Error("sending-message-count", err)
			}
			return err

		default:
			w.logger.Info("bad-command", lager.Data{"command": request.Command})
		}
	}
}

func (w *Worker) stopListener() {
	if err := w.listener.Stop(); err != nil && !errors.Is(err, net.ErrClosed) {
		w.logger.Error("stopping-listener", err)
	}
}
