package worker

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
)

// Command is a request sent by the coordinator to a worker.
type Command string

const (
	FlushCommand    Command = "flush"
	ShutdownCommand Command = "shutdown"
)

// Request ...
type Request struct {
	Command Command `cbor:"command"`
}

// Response answers a Request. Snapshot is set for a flush, MessageCount for
// a shutdown.
type Response struct {
	Snapshot     *accumulation.State `cbor:"snapshot,omitempty"`
	MessageCount int64               `cbor:"message_count,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.PreferredUnsortedEncOptions().EncMode()
	if err != nil {
		panic("worker: CBOR encoder initialization failed: " + err.Error())
	}

	// A busy interval can hold far more timer values than the default
	// limits allow.
	decMode, err = cbor.DecOptions{
		MaxMapPairs:      2147483647,
		MaxArrayElements: 2147483647,
	}.DecMode()
	if err != nil {
		panic("worker: CBOR decoder initialization failed: " + err.Error())
	}
}
