package stream

import (
	"github.com/overmesh/dst/pkg/dst/status"
)

// Listener receives the side effects of close-handshake transitions and
// performs the real I/O the state machine itself never does. It is borrowed
// by the Stream and must outlive it.
//
// All methods are invoked synchronously from inside a transition, on the
// stream owner's goroutine. They may call back into the Stream; such nested
// events are queued and processed in submission order after the current
// transition's side effects complete.
type Listener interface {
	// SendClose transmits a CLOSE frame to the peer. The listener must later
	// report the transmit outcome via Stream.SendCloseAck.
	SendClose()

	// StopReading stops delivering further payload to the application.
	// final is the status the stream closed with.
	StopReading(final status.Status)

	// StreamClosed signals that the handshake is complete on this side. The
	// listener must later call Stream.QuiesceReady once it is ready for the
	// stream to reach its terminal state.
	StreamClosed()
}
