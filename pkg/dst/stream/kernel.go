package stream

import (
	"github.com/overmesh/dst/pkg/dst/status"
)

// kernel is the mutable core of the close handshake: the current state, the
// write-once stored error, the CLOSE resend budget, the reentrancy queue and
// the quiesce continuations.
type kernel struct {
	state   State
	err     *status.Status
	resends int

	// busy guards the transition dispatch loop. Events arriving while busy
	// (from listener callbacks re-entering the stream) are queued and run
	// strictly in submission order.
	busy  bool
	queue []func()

	// quiesceCbs are one-shot continuations fired once Quiesced is reached
	// and the queue has drained.
	quiesceCbs []func()
}

// setError stores the stream's closing error. Write-once: the first error
// recorded on entry into a CarriesError state wins.
func (k *kernel) setError(st status.Status) {
	if k.err != nil {
		return
	}
	e := st
	k.err = &e
}

// closingStatus is the status reported to the listener when receiving stops:
// the stored error in a CarriesError state, OK otherwise.
func (k *kernel) closingStatus() status.Status {
	if k.state.CarriesError() && k.err != nil {
		return *k.err
	}
	return status.OK()
}
