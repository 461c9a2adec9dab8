package worker

import (
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
)

// Client is the coordinator's end of a worker's command channel. Each call
// is one request/response round-trip; calls are serialised.
type Client struct {
	lock    sync.Mutex
	conn    io.ReadWriteCloser
	encoder *cbor.Encoder
	decoder *cbor.Decoder
}

// NewClient ...
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{
		conn:    conn,
		encoder: encMode.NewEncoder(conn),
		decoder: decMode.NewDecoder(conn),
	}
}

// Flush asks the worker for its snapshot. Ownership of the returned state
// passes to the caller.
func (c *Client) Flush() (*accumulation.State, error) {
	response, err := c.roundTrip(FlushCommand)
	if err != nil {
		return nil, err
	}
	if response.Snapshot == nil {
		return accumulation.New(), nil
	}
	return response.Snapshot, nil
}

// Shutdown asks the worker to stop and returns the number of datagrams it
// received over its lifetime.
func (c *Client) Shutdown() (int64, error) {
	response, err := c.roundTrip(ShutdownCommand)
	if err != nil {
		return 0, err
	}
	return response.MessageCount, nil
}

// Close ...
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(command Command) (Response, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var response Response
	if err := c.encoder.Encode(Request{Command: command}); err != nil {
		return response, err
	}
	err := c.decoder.Decode(&response)
	return response, err
}
