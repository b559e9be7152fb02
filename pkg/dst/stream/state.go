package stream

// State is the position of a stream in the bilateral close handshake.
//
// "LocalCloseRequested" states have sent (or are about to hear back about) a
// CLOSE frame and wait for its transmit ack. "LocalClosed" states have had
// that ack confirmed. "Pending...OnSendAck" states received a further event
// while a CLOSE transmit was still in flight and resolve once its ack
// arrives. ClosingProtocol is the common funnel into Closed; Quiesced is
// terminal and reachable only through Closed.
type State int

const (
	StateOpen State = iota
	StateLocalCloseRequestedOk
	StateLocalCloseRequestedWithError
	StateLocalClosedOkDraining
	StateLocalClosedOkComplete
	StateRemoteClosedOk
	StateRemoteClosedAndLocalCloseRequestedOk
	StateRemoteClosedAndLocalCloseRequestedWithError
	StateRemoteClosedOkAndLocalClosedOkDraining
	StatePendingCloseOnSendAck
	StatePendingLocalCloseRequestedWithErrorOnSendAck
	StatePendingRemoteClosedAndLocalCloseRequestedWithError
	StateClosingProtocol
	StateClosed
	StateQuiesced
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateLocalCloseRequestedOk:
		return "LocalCloseRequestedOk"
	case StateLocalCloseRequestedWithError:
		return "LocalCloseRequestedWithError"
	case StateLocalClosedOkDraining:
		return "LocalClosedOkDraining"
	case StateLocalClosedOkComplete:
		return "LocalClosedOkComplete"
	case StateRemoteClosedOk:
		return "RemoteClosedOk"
	case StateRemoteClosedAndLocalCloseRequestedOk:
		return "RemoteClosedAndLocalCloseRequestedOk"
	case StateRemoteClosedAndLocalCloseRequestedWithError:
		return "RemoteClosedAndLocalCloseRequestedWithError"
	case StateRemoteClosedOkAndLocalClosedOkDraining:
		return "RemoteClosedOkAndLocalClosedOkDraining"
	case StatePendingCloseOnSendAck:
		return "PendingCloseOnSendAck"
	case StatePendingLocalCloseRequestedWithErrorOnSendAck:
		return "PendingLocalCloseRequestedWithErrorOnSendAck"
	case StatePendingRemoteClosedAndLocalCloseRequestedWithError:
		return "PendingRemoteClosedAndLocalCloseRequestedWithError"
	case StateClosingProtocol:
		return "ClosingProtocol"
	case StateClosed:
		return "Closed"
	case StateQuiesced:
		return "Quiesced"
	default:
		return "Unknown"
	}
}

// OpenForSending returns whether payload may still leave in s.
func (s State) OpenForSending() bool {
	switch s {
	case StateOpen,
		StateLocalCloseRequestedOk,
		StateLocalClosedOkDraining,
		StateRemoteClosedOk,
		StateRemoteClosedAndLocalCloseRequestedOk,
		StateRemoteClosedOkAndLocalClosedOkDraining:
		return true
	default:
		return false
	}
}

// OpenForReceiving returns whether payload may still be delivered to the
// application in s.
func (s State) OpenForReceiving() bool {
	switch s {
	case StateOpen,
		StateLocalCloseRequestedOk,
		StateLocalClosedOkDraining,
		StateLocalClosedOkComplete:
		return true
	default:
		return false
	}
}

// CanBeginSend returns whether a fresh send may start in s. An in-flight send
// may still be tracked in other OpenForSending states, see Stream.BeginSend.
func (s State) CanBeginSend() bool {
	switch s {
	case StateOpen,
		StateRemoteClosedOk,
		StateRemoteClosedAndLocalCloseRequestedOk:
		return true
	default:
		return false
	}
}

// IsClosed returns whether the handshake is past the point of exchanging data.
func (s State) IsClosed() bool {
	switch s {
	case StateClosingProtocol, StateClosed, StateQuiesced:
		return true
	default:
		return false
	}
}

// CanBeginOp returns whether a fresh op may start in s.
func (s State) CanBeginOp() bool {
	return s != StateQuiesced
}

// IsSendAcked returns whether s expects a SendCloseAck: a CLOSE transmit is
// in flight.
func (s State) IsSendAcked() bool {
	switch s {
	case StateLocalCloseRequestedOk,
		StateLocalCloseRequestedWithError,
		StateRemoteClosedAndLocalCloseRequestedOk,
		StateRemoteClosedAndLocalCloseRequestedWithError,
		StatePendingCloseOnSendAck,
		StatePendingLocalCloseRequestedWithErrorOnSendAck,
		StatePendingRemoteClosedAndLocalCloseRequestedWithError:
		return true
	default:
		return false
	}
}

// SendsClose returns whether entering s triggers transmission of a CLOSE frame.
func (s State) SendsClose() bool {
	switch s {
	case StateLocalCloseRequestedOk,
		StateLocalCloseRequestedWithError,
		StateRemoteClosedAndLocalCloseRequestedOk,
		StateRemoteClosedAndLocalCloseRequestedWithError:
		return true
	default:
		return false
	}
}

// CarriesError returns whether s closes the stream with the locally stored error.
func (s State) CarriesError() bool {
	switch s {
	case StateLocalCloseRequestedWithError,
		StateRemoteClosedAndLocalCloseRequestedWithError,
		StatePendingRemoteClosedAndLocalCloseRequestedWithError,
		StatePendingLocalCloseRequestedWithErrorOnSendAck:
		return true
	default:
		return false
	}
}
