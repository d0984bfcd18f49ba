// Package fsm tracks IPK25-CHAT session phase and gates which messages may
// be sent or received in each phase (§4.3).
package fsm

import (
	"fmt"

	"github.com/klymenko/ipk25chat-client/internal/protocol"
)

// Phase is one of the four session phases (§3).
type Phase int

const (
	Start Phase = iota
	Auth
	Open
	Join
)

func (p Phase) String() string {
	switch p {
	case Start:
		return "Start"
	case Auth:
		return "Auth"
	case Open:
		return "Open"
	case Join:
		return "Join"
	default:
		return "Unknown"
	}
}

// FSM holds the current session phase and enforces the transition table
// in §4.3. It is not safe for concurrent use; the event loop is the sole
// owner (§5).
type FSM struct {
	phase Phase
}

// New returns an FSM in its initial Start phase.
func New() *FSM {
	return &FSM{phase: Start}
}

// Phase returns the current phase.
func (f *FSM) Phase() Phase {
	return f.phase
}

// GuardSend reports whether kind may be sent while in the current phase.
// Bye and Err are legal from any non-terminal phase (invariant 4); the
// other kinds are restricted per the table in §4.3.
func (f *FSM) GuardSend(kind protocol.MessageKind) error {
	switch kind {
	case protocol.KindBye, protocol.KindErr:
		return nil
	case protocol.KindAuth:
		if f.phase == Start || f.phase == Auth {
			return nil
		}
	case protocol.KindJoin, protocol.KindMsg:
		if f.phase == Open {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot send %s in phase %s", protocol.ErrProtocolViolation, kind, f.phase)
}

// GuardRecv reports whether kind may be received while in the current
// phase. udpExtras additionally allows the UDP-only kinds per the table:
// Confirm in every phase, Ping in every non-Start phase.
func (f *FSM) GuardRecv(kind protocol.MessageKind, udpExtras bool) error {
	if udpExtras && (kind == protocol.KindConfirm || kind == protocol.KindPing) {
		if f.phase == Start && kind == protocol.KindPing {
			return fmt.Errorf("%w: cannot receive %s in phase %s", protocol.ErrProtocolViolation, kind, f.phase)
		}
		return nil
	}

	switch kind {
	case protocol.KindBye, protocol.KindErr:
		return nil
	case protocol.KindReply:
		if f.phase == Auth || f.phase == Join {
			return nil
		}
	case protocol.KindMsg:
		if f.phase == Open || f.phase == Join {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot receive %s in phase %s", protocol.ErrProtocolViolation, kind, f.phase)
}

// OnAuthSent transitions Start -> Auth.
func (f *FSM) OnAuthSent() {
	if f.phase == Start {
		f.phase = Auth
	}
}

// OnJoinSent transitions Open -> Join.
func (f *FSM) OnJoinSent() {
	if f.phase == Open {
		f.phase = Join
	}
}

// OnReplyReceived applies the phase transition a Reply triggers: a
// positive Reply in Auth moves to Open; any Reply in Join moves to Open;
// a negative Reply in Auth stays in Auth.
func (f *FSM) OnReplyReceived(ok bool) {
	switch f.phase {
	case Auth:
		if ok {
			f.phase = Open
		}
	case Join:
		f.phase = Open
	}
}
