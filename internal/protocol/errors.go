package protocol

import "errors"

// Sentinel errors, one per error kind in §7, matched with errors.Is/As
// inside the session; cmd/ipk25chat-client exits with status 1 whenever
// the session returns any error. The session and codecs wrap the
// underlying cause with fmt.Errorf("...: %w", ...).
var (
	// ErrMalformedMessage: a decoded frame violates the wire grammar or a
	// field-length/alphabet constraint.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrProtocolViolation: a message is well-formed but illegal in the
	// current FSM phase or direction.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrReplyTimeout: no Reply arrived within the single reply timer.
	ErrReplyTimeout = errors.New("reply timeout")

	// ErrRetransmissionExhausted: UDP retransmission budget reached zero.
	ErrRetransmissionExhausted = errors.New("retransmission exhausted")

	// ErrTransport: a socket read/write failed for a reason other than
	// orderly shutdown.
	ErrTransport = errors.New("transport I/O failure")

	// ErrLocalInput: a line typed by the user was not a valid command or
	// outgoing message.
	ErrLocalInput = errors.New("invalid local input")

	// ErrPeer: the peer sent an Err message.
	ErrPeer = errors.New("peer reported error")
)

// PeerError carries the display name and content of an inbound Err message
// so the shutdown orchestrator can surface it verbatim (§6).
type PeerError struct {
	DisplayName string
	Content     string
}

func (e *PeerError) Error() string {
	return "ERROR FROM " + e.DisplayName + ": " + e.Content
}

func (e *PeerError) Unwrap() error { return ErrPeer }
