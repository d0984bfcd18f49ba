// Package metrics exposes Prometheus counters and histograms for the
// chat session: authentication attempts, UDP retransmissions, confirm
// round-trip latency, messages exchanged and duplicate suppression.
// Exposition over HTTP is optional; the client runs fine without it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all chat-session metric collectors.
type Metrics struct {
	AuthAttempts   *prometheus.CounterVec // label "result": ok|err
	Retransmits    prometheus.Counter
	ConfirmLatency prometheus.Histogram
	MessagesSent   *prometheus.CounterVec // label "kind"
	MessagesRecv   *prometheus.CounterVec // label "kind"
	Duplicates     prometheus.Counter
	SessionErrors  *prometheus.CounterVec // label "kind": protocol|timeout|retransmission
}

// New registers and returns a fresh set of collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ipk25chat_auth_attempts_total",
			Help: "Total AUTH messages sent, labeled by outcome.",
		}, []string{"result"}),

		Retransmits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ipk25chat_udp_retransmits_total",
			Help: "Total UDP message retransmissions due to missing CONFIRM.",
		}),

		ConfirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ipk25chat_udp_confirm_latency_seconds",
			Help:    "Time between sending a UDP message and receiving its CONFIRM.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ipk25chat_messages_sent_total",
			Help: "Total messages sent, labeled by kind.",
		}, []string{"kind"}),

		MessagesRecv: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ipk25chat_messages_received_total",
			Help: "Total messages received, labeled by kind.",
		}, []string{"kind"}),

		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "ipk25chat_udp_duplicates_total",
			Help: "Total UDP messages discarded as duplicates of an already-seen id.",
		}),

		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ipk25chat_session_errors_total",
			Help: "Total session-ending errors, labeled by kind.",
		}, []string{"kind"}),
	}
}

// ObserveConfirmLatency records the delay between send and CONFIRM.
func (m *Metrics) ObserveConfirmLatency(d time.Duration) {
	m.ConfirmLatency.Observe(d.Seconds())
}

// Default is the process-wide collector set, registered against the
// global Prometheus registry. Sessions that don't care about metrics
// can ignore it; cmd/ipk25chat-client always passes it to the session
// and additionally exposes it over HTTP when -metrics-addr is set.
var Default = New(prometheus.DefaultRegisterer)

// Server exposes /metrics and /health over HTTP.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics HTTP server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start runs the HTTP server in a background goroutine. It waits up to
// 100ms: if ListenAndServe fails within that window it returns the
// error, otherwise it returns nil.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// TestRegistry returns an isolated registry and a Metrics bound to it,
// for use in tests that must not pollute the global registry.
func TestRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, New(reg)
}
