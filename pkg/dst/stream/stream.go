package stream

import (
	"go.uber.org/zap"

	"github.com/overmesh/dst/pkg/dst/status"
)

// _maxCloseRetries bounds how many times an unavailable CLOSE transmit is
// retried before the handshake degrades to ClosingProtocol.
const _maxCloseRetries = 3

// Stream drives the close handshake of one duplex stream. It owns the state
// kernel and the outstanding op/send counters, and calls back into its
// Listener for real I/O.
//
// A Stream is single-owner: all methods must be called from one goroutine,
// and none of them block or suspend. Listener callbacks run synchronously
// inside transitions and may re-enter the Stream; nested events are queued
// and observe a total, non-interleaved order of state changes.
//
// A Stream may be discarded only once its state is Quiesced and no ops are
// outstanding.
type Stream struct {
	k kernel

	// sends is always a subset of ops: every send is also an op.
	ops   int
	sends int

	listener Listener
	lg       *zap.Logger
}

// New creates a Stream in the Open state. listener must be non-nil and
// outlive the stream; logger may be nil.
func New(listener Listener, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		k:        kernel{state: StateOpen},
		listener: listener,
		lg:       logger,
	}
}

// State returns the current handshake state.
func (s *Stream) State() State {
	return s.k.state
}

// OutstandingOps returns the number of in-flight ops.
func (s *Stream) OutstandingOps() int {
	return s.ops
}

// OutstandingSends returns the number of in-flight sends.
func (s *Stream) OutstandingSends() int {
	return s.sends
}

// CanBeginOp returns whether BeginOp is currently allowed.
func (s *Stream) CanBeginOp() bool {
	return s.k.state.CanBeginOp()
}

// CanBeginSend returns whether a fresh send may start.
func (s *Stream) CanBeginSend() bool {
	return s.k.state.CanBeginSend()
}

// LocalClose requests a local half-close carrying st (OK or an error).
// onQuiesced, if non-nil, fires exactly once when the stream reaches
// Quiesced; immediately if it already has and the stream is idle.
func (s *Stream) LocalClose(st status.Status, onQuiesced func()) {
	s.dispatch(func() {
		if onQuiesced != nil {
			s.k.quiesceCbs = append(s.k.quiesceCbs, onQuiesced)
		}
		next, ok := localCloseNext(s.k.state, st.IsOK())
		if !ok {
			s.lg.Debug("local close ignored", zap.Stringer("state", s.k.state), zap.Stringer("status", st))
			return
		}
		if next.CarriesError() {
			s.k.setError(st)
		}
		s.moveTo(next, "local close")
	})
}

// RemoteClose records that the peer signaled close with st.
func (s *Stream) RemoteClose(st status.Status) {
	s.dispatch(func() {
		next, ok := remoteCloseNext(s.k.state, st.IsOK())
		if !ok {
			s.lg.Debug("remote close ignored", zap.Stringer("state", s.k.state), zap.Stringer("status", st))
			return
		}
		s.moveTo(next, "remote close")
	})
}

// SendCloseAck reports the transmit outcome of the CLOSE frame requested by
// Listener.SendClose. Calling it outside a send-acked state is a contract
// violation.
func (s *Stream) SendCloseAck(st status.Status) {
	s.dispatch(func() {
		cur := s.k.state
		if !cur.IsSendAcked() {
			s.lg.Panic("send close ack in a state with no close in flight", zap.Stringer("state", cur))
		}
		switch cur {
		case StateLocalCloseRequestedOk:
			if st.IsOK() {
				if s.sends > 0 {
					s.moveTo(StateLocalClosedOkDraining, "close acked")
				} else {
					s.moveTo(StateLocalClosedOkComplete, "close acked")
				}
				return
			}
			s.resendOrAbort(st)
		case StateLocalCloseRequestedWithError,
			StateRemoteClosedAndLocalCloseRequestedOk,
			StateRemoteClosedAndLocalCloseRequestedWithError:
			if st.IsOK() {
				s.moveTo(StateClosingProtocol, "close acked")
				return
			}
			s.resendOrAbort(st)
		case StatePendingCloseOnSendAck:
			s.moveTo(StateClosingProtocol, "close acked")
		case StatePendingLocalCloseRequestedWithErrorOnSendAck:
			s.moveTo(StateLocalCloseRequestedWithError, "close acked")
		case StatePendingRemoteClosedAndLocalCloseRequestedWithError:
			s.moveTo(StateRemoteClosedAndLocalCloseRequestedWithError, "close acked")
		}
	})
}

// ForceClose tears the stream down abruptly. st is informational only; the
// stored error, if any, keeps reporting the original closing status.
func (s *Stream) ForceClose(st status.Status) {
	s.dispatch(func() {
		cur := s.k.state
		switch cur {
		case StateOpen,
			StateLocalClosedOkDraining,
			StateLocalClosedOkComplete,
			StateRemoteClosedOk,
			StateRemoteClosedOkAndLocalClosedOkDraining:
			s.lg.Debug("force close", zap.Stringer("state", cur), zap.Stringer("status", st))
			s.moveTo(StateClosingProtocol, "force close")
		case StateLocalCloseRequestedOk,
			StateLocalCloseRequestedWithError,
			StateRemoteClosedAndLocalCloseRequestedOk,
			StateRemoteClosedAndLocalCloseRequestedWithError,
			StatePendingLocalCloseRequestedWithErrorOnSendAck,
			StatePendingRemoteClosedAndLocalCloseRequestedWithError:
			// a CLOSE transmit is in flight; finish tearing down once it is acked
			s.lg.Debug("force close", zap.Stringer("state", cur), zap.Stringer("status", st))
			s.moveTo(StatePendingCloseOnSendAck, "force close")
		}
	})
}

// QuiesceReady signals that the listener finished its StreamClosed work.
// Valid only in ClosingProtocol.
func (s *Stream) QuiesceReady() {
	s.dispatch(func() {
		if s.k.state != StateClosingProtocol {
			s.lg.Panic("quiesce ready outside ClosingProtocol", zap.Stringer("state", s.k.state))
		}
		s.moveTo(StateClosed, "quiesce ready")
		if s.ops == 0 {
			s.moveTo(StateQuiesced, "no outstanding ops")
		}
	})
}

// BeginOp tracks the start of an in-flight op. Requires CanBeginOp.
func (s *Stream) BeginOp() {
	if !s.k.state.CanBeginOp() {
		s.lg.Panic("begin op on quiesced stream")
	}
	s.ops++
}

// EndOp tracks the end of an op started with BeginOp.
func (s *Stream) EndOp() {
	if s.ops == 0 {
		s.lg.Panic("end op without matching begin")
	}
	s.ops--
	if s.ops == 0 {
		s.noOutstandingOps()
	}
}

// BeginSend tracks the start of an in-flight send, which is also an op. It
// is permitted while sends may begin, or while sends are already draining so
// in-flight ones can be handed over after fresh sends are disallowed.
func (s *Stream) BeginSend() {
	if !s.k.state.OpenForSending() && s.sends == 0 {
		s.lg.Panic("begin send on a stream closed for sending", zap.Stringer("state", s.k.state))
	}
	s.sends++
	s.ops++
}

// EndSend tracks the end of a send started with BeginSend.
func (s *Stream) EndSend() {
	if s.sends == 0 {
		s.lg.Panic("end send without matching begin")
	}
	s.sends--
	s.ops--
	if s.sends == 0 {
		s.noOutstandingSends()
	}
	if s.ops == 0 {
		s.noOutstandingOps()
	}
}

func (s *Stream) noOutstandingOps() {
	s.dispatch(func() {
		if s.k.state == StateClosed {
			s.moveTo(StateQuiesced, "no outstanding ops")
		}
	})
}

func (s *Stream) noOutstandingSends() {
	s.dispatch(func() {
		switch s.k.state {
		case StateLocalClosedOkDraining:
			s.moveTo(StateLocalClosedOkComplete, "no outstanding sends")
		case StateRemoteClosedOkAndLocalClosedOkDraining:
			s.moveTo(StateClosingProtocol, "no outstanding sends")
		}
	})
}

// dispatch queues ev and, unless a transition is already in progress, runs
// the queue to completion. Quiesce continuations fire only here, once the
// queue has drained: never mid-transition.
func (s *Stream) dispatch(ev func()) {
	s.k.queue = append(s.k.queue, ev)
	if s.k.busy {
		return
	}
	s.k.busy = true
	for len(s.k.queue) > 0 {
		next := s.k.queue[0]
		s.k.queue = s.k.queue[1:]
		next()
	}
	s.k.busy = false

	for s.k.state == StateQuiesced && len(s.k.quiesceCbs) > 0 {
		cb := s.k.quiesceCbs[0]
		s.k.quiesceCbs = s.k.quiesceCbs[1:]
		cb()
	}
}

// moveTo applies a state change and its side effects. Effects are derived
// uniformly from the state predicates, not hand-listed per transition:
//   - first entry into a SendsClose state resets the resend budget and
//     transmits a CLOSE
//   - leaving the receivable states stops delivery with the closing status
//   - entering the closed states announces the close once
func (s *Stream) moveTo(next State, event string) {
	prev := s.k.state
	if next == prev {
		return
	}
	s.k.state = next
	s.lg.Debug("stream state changed",
		zap.Stringer("from", prev), zap.Stringer("to", next), zap.String("event", event))

	if next.SendsClose() && !prev.SendsClose() {
		s.k.resends = 0
		s.listener.SendClose()
	}
	if !next.OpenForReceiving() && prev.OpenForReceiving() {
		s.listener.StopReading(s.k.closingStatus())
	}
	if next.IsClosed() && !prev.IsClosed() {
		s.listener.StreamClosed()
	}
}

// resendOrAbort handles a failed CLOSE transmit: retry while the failure is
// transient and budget remains, otherwise give up on the handshake.
func (s *Stream) resendOrAbort(st status.Status) {
	if st.IsRetryable() && s.k.resends < _maxCloseRetries {
		s.k.resends++
		s.lg.Debug("close transmit unavailable, resending",
			zap.Int("attempt", s.k.resends), zap.Stringer("status", st))
		s.listener.SendClose()
		return
	}
	s.lg.Debug("close transmit failed, aborting handshake", zap.Stringer("status", st))
	s.moveTo(StateClosingProtocol, "close transmit failed")
}

func localCloseNext(s State, ok bool) (State, bool) {
	switch s {
	case StateOpen:
		if ok {
			return StateLocalCloseRequestedOk, true
		}
		return StateLocalCloseRequestedWithError, true
	case StateLocalCloseRequestedOk:
		if !ok {
			return StatePendingLocalCloseRequestedWithErrorOnSendAck, true
		}
	case StateLocalClosedOkDraining, StateLocalClosedOkComplete:
		if !ok {
			return StateLocalCloseRequestedWithError, true
		}
	case StateRemoteClosedOk:
		if ok {
			return StateRemoteClosedAndLocalCloseRequestedOk, true
		}
		return StateRemoteClosedAndLocalCloseRequestedWithError, true
	case StateRemoteClosedAndLocalCloseRequestedOk:
		if !ok {
			return StatePendingRemoteClosedAndLocalCloseRequestedWithError, true
		}
	case StateRemoteClosedOkAndLocalClosedOkDraining:
		if !ok {
			return StateRemoteClosedAndLocalCloseRequestedWithError, true
		}
	}
	return s, false
}

func remoteCloseNext(s State, ok bool) (State, bool) {
	switch s {
	case StateOpen:
		if ok {
			return StateRemoteClosedOk, true
		}
		return StateClosingProtocol, true
	case StateLocalCloseRequestedOk:
		if ok {
			return StateRemoteClosedAndLocalCloseRequestedOk, true
		}
		return StatePendingCloseOnSendAck, true
	case StateLocalCloseRequestedWithError:
		if ok {
			return StateRemoteClosedAndLocalCloseRequestedWithError, true
		}
		return StatePendingCloseOnSendAck, true
	case StateLocalClosedOkDraining:
		if ok {
			return StateRemoteClosedOkAndLocalClosedOkDraining, true
		}
		return StateClosingProtocol, true
	case StateLocalClosedOkComplete:
		return StateClosingProtocol, true
	case StateRemoteClosedOk, StateRemoteClosedOkAndLocalClosedOkDraining:
		// a second remote close is a protocol violation from the peer
		if !ok {
			return StateClosingProtocol, true
		}
	case StateRemoteClosedAndLocalCloseRequestedOk, StateRemoteClosedAndLocalCloseRequestedWithError:
		if !ok {
			return StatePendingCloseOnSendAck, true
		}
	case StatePendingLocalCloseRequestedWithErrorOnSendAck:
		if ok {
			return StatePendingRemoteClosedAndLocalCloseRequestedWithError, true
		}
		return StatePendingCloseOnSendAck, true
	case StatePendingRemoteClosedAndLocalCloseRequestedWithError:
		if !ok {
			return StatePendingCloseOnSendAck, true
		}
	}
	return s, false
}
