// Package config holds the client's runtime configuration: the struct
// the protocol engine is built from, and its defaults. Parsing the CLI
// flags that populate it is out of scope (§1); cmd/ipk25chat-client owns
// that and constructs a Config.
package config

import (
	"fmt"
	"net"
	"time"
)

// Transport selects the wire variant (§4.1 vs §4.2).
type Transport int

const (
	TCP Transport = iota
	UDP
)

func (t Transport) String() string {
	if t == UDP {
		return "udp"
	}
	return "tcp"
}

// Config holds the complete engine configuration, mirroring the CLI
// surface in §6.
type Config struct {
	// Transport selects TCP or UDP. CLI flag: -t.
	Transport Transport

	// ServerAddr is the resolved server address (hostname resolution
	// happens before Config is built; see SPEC_FULL's Supplemented
	// Features). CLI flag: -s.
	ServerAddr net.IP

	// Port is the server port. CLI flag: -p.
	Port uint16

	// ConfirmTimeout is the UDP delivery-confirmation timeout. CLI flag: -d.
	ConfirmTimeout time.Duration

	// MaxRetransmissions is the UDP retransmission budget. CLI flag: -r.
	MaxRetransmissions uint8

	// ReplyTimeout is the single reply-wait timer shared by both
	// transports (5s, §4.6/§4.7). Not independently configurable via
	// the CLI, but broken out here so tests can shrink it.
	ReplyTimeout time.Duration
}

// Defaults returns a Config with the defaults named in §6: port 4567,
// 250ms confirm timeout, 3 retransmissions, 5s reply timeout.
func Defaults() Config {
	return Config{
		Transport:          TCP,
		Port:               4567,
		ConfirmTimeout:     250 * time.Millisecond,
		MaxRetransmissions: 3,
		ReplyTimeout:       5 * time.Second,
	}
}

// Validate checks the configuration is complete enough to start a session.
func (c Config) Validate() error {
	if c.ServerAddr == nil {
		return fmt.Errorf("server address is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port must be nonzero")
	}
	if c.Transport == UDP && c.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm timeout must be positive")
	}
	return nil
}

// Addr returns the net-package-friendly "host:port" string for dialing.
func (c Config) Addr() string {
	return net.JoinHostPort(c.ServerAddr.String(), fmt.Sprintf("%d", c.Port))
}
