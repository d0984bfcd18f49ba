package fsm

import (
	"errors"
	"testing"

	"github.com/klymenko/ipk25chat-client/internal/protocol"
)

func TestGuardSend(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		kind  protocol.MessageKind
		ok    bool
	}{
		{"auth in start", Start, protocol.KindAuth, true},
		{"auth in auth", Auth, protocol.KindAuth, true},
		{"auth in open", Open, protocol.KindAuth, false},
		{"join in open", Open, protocol.KindJoin, true},
		{"join in start", Start, protocol.KindJoin, false},
		{"msg in open", Open, protocol.KindMsg, true},
		{"msg in join", Join, protocol.KindMsg, false},
		{"bye anywhere", Join, protocol.KindBye, true},
		{"err anywhere", Start, protocol.KindErr, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &FSM{phase: tt.phase}
			err := f.GuardSend(tt.kind)
			if (err == nil) != tt.ok {
				t.Errorf("GuardSend(%s) in %s = %v, want ok=%v", tt.kind, tt.phase, err, tt.ok)
			}
			if err != nil && !errors.Is(err, protocol.ErrProtocolViolation) {
				t.Errorf("error does not wrap ErrProtocolViolation: %v", err)
			}
		})
	}
}

func TestGuardRecv(t *testing.T) {
	tests := []struct {
		name      string
		phase     Phase
		kind      protocol.MessageKind
		udpExtras bool
		ok        bool
	}{
		{"reply in auth", Auth, protocol.KindReply, false, true},
		{"reply in start", Start, protocol.KindReply, false, false},
		{"msg in open", Open, protocol.KindMsg, false, true},
		{"msg in auth", Auth, protocol.KindMsg, false, false},
		{"confirm udp in start", Start, protocol.KindConfirm, true, true},
		{"ping udp in start", Start, protocol.KindPing, true, false},
		{"ping udp in open", Open, protocol.KindPing, true, true},
		{"confirm without udp extras", Start, protocol.KindConfirm, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &FSM{phase: tt.phase}
			err := f.GuardRecv(tt.kind, tt.udpExtras)
			if (err == nil) != tt.ok {
				t.Errorf("GuardRecv(%s, udp=%v) in %s = %v, want ok=%v", tt.kind, tt.udpExtras, tt.phase, err, tt.ok)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	f := New()
	if f.Phase() != Start {
		t.Fatalf("initial phase = %s, want Start", f.Phase())
	}

	f.OnAuthSent()
	if f.Phase() != Auth {
		t.Fatalf("after OnAuthSent, phase = %s, want Auth", f.Phase())
	}

	f.OnReplyReceived(false)
	if f.Phase() != Auth {
		t.Fatalf("negative reply in Auth should stay in Auth, got %s", f.Phase())
	}

	f.OnReplyReceived(true)
	if f.Phase() != Open {
		t.Fatalf("positive reply in Auth should move to Open, got %s", f.Phase())
	}

	f.OnJoinSent()
	if f.Phase() != Join {
		t.Fatalf("after OnJoinSent, phase = %s, want Join", f.Phase())
	}

	f.OnReplyReceived(false)
	if f.Phase() != Open {
		t.Fatalf("any reply in Join should move to Open, got %s", f.Phase())
	}
}
