// Command ipk25chat-client is the IPK25-CHAT client: it parses the CLI
// surface of §6, resolves the server address, builds a session over
// the selected transport, and maps the outcome to an exit code.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klymenko/ipk25chat-client/internal/config"
	"github.com/klymenko/ipk25chat-client/internal/logging"
	"github.com/klymenko/ipk25chat-client/internal/metrics"
	"github.com/klymenko/ipk25chat-client/internal/session"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ipk25chat-client", flag.ContinueOnError)

	transport := fs.String("t", "", "transport: tcp or udp (required)")
	host := fs.String("s", "", "server hostname or IPv4 address (required)")
	port := fs.Uint("p", 4567, "server port")
	confirmTimeoutMS := fs.Uint("d", 250, "UDP confirm timeout in milliseconds")
	maxRetrans := fs.Uint("r", 3, "UDP max retransmission count")
	help := fs.Bool("h", false, "print this help message and exit")

	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "json", "log format: json or text")
	metricsAddr := fs.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled if empty)")

	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help {
		printHelp(fs)
		return 0
	}

	logger := logging.New(logging.Config{Level: *logLevel, Format: *logFormat, Output: os.Stderr})

	cfg, err := buildConfig(*transport, *host, *port, *confirmTimeoutMS, *maxRetrans)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	m := metrics.Default
	if *metricsAddr != "" {
		srv := metrics.NewServer(*metricsAddr)
		if err := srv.Start(); err != nil {
			logger.Error("failed to start metrics server", logging.Err(err))
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := session.NewOutput(os.Stdout, os.Stderr)

	if err := runSession(ctx, cfg, os.Stdin, out, logger, m); err != nil {
		return 1
	}
	return 0
}

// buildConfig validates the raw flag values and resolves the server
// hostname, preferring an IPv4 address, per SPEC_FULL's hostname-resolution
// supplement (grounded on args.h::hostnameToIpAddress).
func buildConfig(transport, host string, port, confirmTimeoutMS, maxRetrans uint) (config.Config, error) {
	cfg := config.Defaults()

	switch transport {
	case "tcp":
		cfg.Transport = config.TCP
	case "udp":
		cfg.Transport = config.UDP
	case "":
		return cfg, fmt.Errorf("-t is required (tcp or udp)")
	default:
		return cfg, fmt.Errorf("invalid -t value %q: must be tcp or udp", transport)
	}

	if host == "" {
		return cfg, fmt.Errorf("-s is required")
	}
	addr, err := resolveHost(host)
	if err != nil {
		return cfg, fmt.Errorf("resolve %q: %w", host, err)
	}
	cfg.ServerAddr = addr

	if port == 0 || port > 65535 {
		return cfg, fmt.Errorf("invalid -p value %d", port)
	}
	cfg.Port = uint16(port)

	if confirmTimeoutMS == 0 || confirmTimeoutMS > 65535 {
		return cfg, fmt.Errorf("invalid -d value %d", confirmTimeoutMS)
	}
	cfg.ConfirmTimeout = time.Duration(confirmTimeoutMS) * time.Millisecond

	if maxRetrans > 255 {
		return cfg, fmt.Errorf("invalid -r value %d", maxRetrans)
	}
	cfg.MaxRetransmissions = uint8(maxRetrans)

	return cfg, cfg.Validate()
}

// resolveHost accepts a literal IP address or a hostname; a hostname is
// resolved with net.LookupIP, returning its first IPv4 address, or its
// first address of any family when it has no IPv4 address.
func resolveHost(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return ip, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return ips[0], nil
}

// runSession dials the configured transport and drives the session to
// completion. Errors raised before a session exists (dial/listen
// failure, an unsupported transport) are printed here, since nothing
// else has reported them yet; errors returned by sess.Run itself are
// not reprinted, since the session already wrote its own diagnostic to
// Output before returning (§6/§7).
func runSession(ctx context.Context, cfg config.Config, stdin *os.File, out session.Output, logger *logging.Logger, m *metrics.Metrics) error {
	switch cfg.Transport {
	case config.TCP:
		conn, err := net.Dial("tcp", cfg.Addr())
		if err != nil {
			err = fmt.Errorf("connect: %w", err)
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return err
		}
		defer conn.Close()

		sess := session.NewTCP(conn, stdin, out, logger, m, cfg.ReplyTimeout)
		return sess.Run(ctx)

	case config.UDP:
		local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
		if err != nil {
			err = fmt.Errorf("open udp socket: %w", err)
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return err
		}
		defer local.Close()

		peer := &net.UDPAddr{IP: cfg.ServerAddr, Port: int(cfg.Port)}
		sess := session.NewUDP(local, peer, stdin, out, logger, m, cfg.ConfirmTimeout, cfg.MaxRetransmissions, cfg.ReplyTimeout)
		return sess.Run(ctx)

	default:
		err := fmt.Errorf("unsupported transport %s", cfg.Transport)
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return err
	}
}

func printHelp(fs *flag.FlagSet) {
	fmt.Println("ipk25chat-client: IPK25-CHAT protocol client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ipk25chat-client -t <tcp|udp> -s <host> [-p <port>] [-d <ms>] [-r <n>]")
	fmt.Println()
	fmt.Println("Flags:")
	fs.PrintDefaults()
}
