package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuthAttempts(t *testing.T) {
	_, m := TestRegistry()

	m.AuthAttempts.WithLabelValues("ok").Inc()
	m.AuthAttempts.WithLabelValues("err").Inc()
	m.AuthAttempts.WithLabelValues("err").Inc()

	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("err")); got != 2 {
		t.Errorf("err attempts = %v, want 2", got)
	}
}

func TestRetransmitsAndDuplicates(t *testing.T) {
	_, m := TestRegistry()

	m.Retransmits.Inc()
	m.Retransmits.Inc()
	m.Duplicates.Inc()

	if got := testutil.ToFloat64(m.Retransmits); got != 2 {
		t.Errorf("retransmits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Duplicates); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}
}

func TestMessageCounters(t *testing.T) {
	_, m := TestRegistry()

	m.MessagesSent.WithLabelValues("msg").Inc()
	m.MessagesRecv.WithLabelValues("reply").Inc()

	if got := testutil.ToFloat64(m.MessagesSent.WithLabelValues("msg")); got != 1 {
		t.Errorf("sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesRecv.WithLabelValues("reply")); got != 1 {
		t.Errorf("recv = %v, want 1", got)
	}
}

func TestSessionErrors(t *testing.T) {
	_, m := TestRegistry()

	m.SessionErrors.WithLabelValues("timeout").Inc()

	if got := testutil.ToFloat64(m.SessionErrors.WithLabelValues("timeout")); got != 1 {
		t.Errorf("session errors = %v, want 1", got)
	}
}

func TestObserveConfirmLatency(t *testing.T) {
	_, m := TestRegistry()

	m.ObserveConfirmLatency(5 * time.Millisecond)

	if got := testutil.CollectAndCount(m.ConfirmLatency); got != 1 {
		t.Errorf("confirm latency observations = %d, want 1", got)
	}
}

func TestNewServer(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	if s.httpServer == nil {
		t.Fatal("expected non-nil httpServer")
	}
}
