// Package listener owns one receive path on the shared stats socket.
package listener

import (
	"errors"
	"net"
	"sync"

	"code.cloudfoundry.org/lager/v3"
	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/protocol"
)

// Listener decodes datagrams read from a socket and folds their samples
// into the current accumulation state.
type Listener struct {
	id   int
	conn net.PacketConn

	maxDatagramSize int
	readBatchSize   int

	logger lager.Logger

	// stateLock guards state and the counters snapshotted at the last flush.
	stateLock    sync.Mutex
	state        *accumulation.State
	lastMessages int64
	lastBytes    int64

	messages atomic.Int64
	bytes    atomic.Int64
}

// New ...
func New(id int, conn net.PacketConn, tallierConfig config.TallierConfig, logger lager.Logger) *Listener {
	maxDatagramSize := tallierConfig.MaxDatagramSize
	if maxDatagramSize <= 0 {
		maxDatagramSize = 8192
	}
	readBatchSize := tallierConfig.ReadBatchSize
	if readBatchSize <= 0 {
		readBatchSize = 1
	}

	return &Listener{
		id:              id,
		conn:            conn,
		maxDatagramSize: maxDatagramSize,
		readBatchSize:   readBatchSize,
		logger:          logger,
		state:           accumulation.New(),
	}
}

// ID ...
func (l *Listener) ID() int {
	return l.id
}

// Run reads datagrams until the socket is closed.
func (l *Listener) Run() error {
	packetConn := ipv4.NewPacketConn(l.conn)

	messages := make([]ipv4.Message, l.readBatchSize)
	for i := range messages {
		messages[i].Buffers = [][]byte{make([]byte, l.maxDatagramSize)}
	}

	l.logger.Info("listening", lager.Data{"addr": l.conn.LocalAddr().String()})
	for {
		n, err := packetConn.ReadBatch(messages, 0)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.logger.Info("socket-closed")
				return nil
			}
			l.logger.Error("read-failed", err)
			continue
		}

		for _, message := range messages[:n] {
			l.HandleDatagram(message.Buffers[0][:message.N])
		}
	}
}

// HandleDatagram decodes one datagram and folds its samples in. The
// message and byte counters move even if nothing in it could be parsed.
func (l *Listener) HandleDatagram(datagram []byte) {
	samples := protocol.Parse(datagram)

	l.stateLock.Lock()
	defer l.stateLock.Unlock()

	for _, sample := range samples {
		l.state.Add(sample)
	}
	l.messages.Inc()
	l.bytes.Add(int64(len(datagram)))
}

// Flush swaps in an empty state and returns the previous one, with this
// listener's message and byte deltas since the last flush written into it.
// Those keys are owned by the listener and replace anything a client sent
// under the same name.
func (l *Listener) Flush() *accumulation.State {
	l.stateLock.Lock()
	snapshot := l.state
	l.state = accumulation.New()

	messages, bytes := l.messages.Load(), l.bytes.Load()
	messagesDelta, bytesDelta := messages-l.lastMessages, bytes-l.lastBytes
	l.lastMessages, l.lastBytes = messages, bytes
	l.stateLock.Unlock()

	snapshot.Counters[accumulation.MessagesKey(l.id)] = float64(messagesDelta)
	snapshot.Counters[accumulation.BytesKey(l.id)] = float64(bytesDelta)

	return snapshot
}

// MessageCount is the number of datagrams received since start.
func (l *Listener) MessageCount() int64 {
	return l.messages.Load()
}

// Stop closes this listener's handle on the socket, which ends Run.
func (l *Listener) Stop() error {
	return l.conn.Close()
}
