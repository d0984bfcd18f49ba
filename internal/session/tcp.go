package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/klymenko/ipk25chat-client/internal/fsm"
	"github.com/klymenko/ipk25chat-client/internal/input"
	"github.com/klymenko/ipk25chat-client/internal/logging"
	"github.com/klymenko/ipk25chat-client/internal/metrics"
	"github.com/klymenko/ipk25chat-client/internal/protocol"
)

// TCP drives one client session over the text wire variant (§4.1,
// §4.6). Stream reassembly happens around CRLF frames; there is no
// retransmission sublayer, so the only timer is the single reply wait.
type TCP struct {
	conn         net.Conn
	stdin        *bufio.Scanner
	out          Output
	logger       *logging.Logger
	metrics      *metrics.Metrics
	replyTimeout time.Duration

	fsm     *fsm.FSM
	display displayName
}

// NewTCP builds a TCP session over conn, reading user lines from stdin.
func NewTCP(conn net.Conn, stdin io.Reader, out Output, logger *logging.Logger, m *metrics.Metrics, replyTimeout time.Duration) *TCP {
	stdinScanner := bufio.NewScanner(stdin)
	stdinScanner.Buffer(make([]byte, 0, 4096), protocol.MaxContentLength+1)

	return &TCP{
		conn:         conn,
		stdin:        stdinScanner,
		out:          out,
		logger:       logger,
		metrics:      m,
		replyTimeout: replyTimeout,
		fsm:          fsm.New(),
	}
}

type netFrame struct {
	in  protocol.Incoming
	err error
}

type stdinLine struct {
	cmd input.Command
	err error // io.EOF at end of input
}

// textFrameSplit is a bufio.SplitFunc that tokenizes CRLF-terminated
// frames, returning each token with its terminator included (DecodeText
// expects the CRLF suffix).
func textFrameSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := indexCRLF(data); i >= 0 {
		return i + 2, data[:i+2], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, bufio.ErrFinalToken
	}
	return 0, nil, nil
}

func indexCRLF(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// Run executes the event loop until shutdown or a fatal error, per
// §4.6/§4.8. Before returning it attempts a best-effort farewell
// message, a Bye on SIGINT/EOF or an Err on a locally detected fatal
// condition, subject to the exceptions farewell lists. No farewell is
// sent when the peer sent Bye or closed the connection.
func (s *TCP) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	netCh := make(chan netFrame, 8)
	go s.readNet(ctx, netCh)

	resume := make(chan struct{}, 1)
	stdinCh := make(chan stdinLine, 8)
	go s.readStdin(ctx, stdinCh, resume)

	var replyTimer *time.Timer
	var replyTimerC <-chan time.Time
	awaitingReply := false

	// resumeInput re-enables standard-input readiness (invariant 3):
	// only issued while no protocol response is outstanding.
	resumeInput := func() {
		select {
		case resume <- struct{}{}:
		default:
		}
	}

	stopReplyTimer := func() {
		if replyTimer != nil {
			replyTimer.Stop()
			replyTimer = nil
			replyTimerC = nil
		}
		awaitingReply = false
		resumeInput()
	}
	startReplyTimer := func() {
		replyTimer = time.NewTimer(s.replyTimeout)
		replyTimerC = replyTimer.C
		awaitingReply = true
	}
	defer stopReplyTimer()

	resumeInput()

	for {
		select {
		case <-ctx.Done():
			return s.farewell(nil)

		case <-replyTimerC:
			stopReplyTimer()
			err := fmt.Errorf("%w: no reply within %s", protocol.ErrReplyTimeout, s.replyTimeout)
			printLocalErr(s.out, err)
			return s.farewell(err)

		case frame := <-netCh:
			if frame.err != nil {
				if errors.Is(frame.err, io.EOF) {
					return nil
				}
				printLocalErr(s.out, frame.err)
				return s.farewell(frame.err)
			}
			done, err := s.handleIncoming(frame.in, &awaitingReply, stopReplyTimer)
			if done {
				return err
			}

		case line := <-stdinCh:
			if line.err != nil {
				if errors.Is(line.err, io.EOF) {
					return s.farewell(nil)
				}
				printLocalErr(s.out, line.err)
				return s.farewell(line.err)
			}
			startsReply, err := s.handleCommand(line.cmd)
			if err != nil {
				printLocalErr(s.out, err)
				resumeInput()
				continue
			}
			if startsReply {
				startReplyTimer()
			} else {
				resumeInput()
			}
		}
	}
}

func (s *TCP) readNet(ctx context.Context, out chan<- netFrame) {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(textFrameSplit)
	scanner.Buffer(make([]byte, 0, 4096), protocol.MaxTextMessageSize)

	for scanner.Scan() {
		in, err := protocol.DecodeText(scanner.Text())
		select {
		case out <- netFrame{in: in, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case out <- netFrame{err: fmt.Errorf("%w: %v", protocol.ErrTransport, err)}:
	case <-ctx.Done():
	}
}

// readStdin blocks on a resume token before each read (invariant 3):
// the event loop only issues one while no reply is outstanding.
func (s *TCP) readStdin(ctx context.Context, out chan<- stdinLine, resume <-chan struct{}) {
	for {
		select {
		case <-resume:
		case <-ctx.Done():
			return
		}

		if !s.stdin.Scan() {
			err := s.stdin.Err()
			if err == nil {
				err = io.EOF
			}
			select {
			case out <- stdinLine{err: err}:
			case <-ctx.Done():
			}
			return
		}

		cmd, err := input.Parse(s.stdin.Text())
		select {
		case out <- stdinLine{cmd: cmd, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// handleIncoming applies one decoded frame to the FSM and renders it.
// done reports whether the session should terminate and with what error.
func (s *TCP) handleIncoming(in protocol.Incoming, awaitingReply *bool, stopReplyTimer func()) (done bool, err error) {
	if guardErr := s.fsm.GuardRecv(in.Kind, false); guardErr != nil {
		s.metrics.SessionErrors.WithLabelValues("protocol").Inc()
		printLocalErr(s.out, guardErr)
		return true, s.farewell(guardErr)
	}

	s.metrics.MessagesRecv.WithLabelValues(in.Kind.String()).Inc()

	switch in.Kind {
	case protocol.KindReply:
		stopReplyTimer()
		s.fsm.OnReplyReceived(in.OK)
		printReply(s.out, in)
		return false, nil
	case protocol.KindMsg:
		printMsg(s.out, in)
		return false, nil
	case protocol.KindErr:
		printPeerErr(s.out, in)
		return true, s.farewell(&protocol.PeerError{DisplayName: in.DisplayName, Content: in.Content})
	case protocol.KindBye:
		return true, nil
	default:
		err := fmt.Errorf("%w: unexpected %s over TCP", protocol.ErrProtocolViolation, in.Kind)
		return true, s.farewell(err)
	}
}

// handleCommand sends the wire message a local command implies, if any.
// startsReply reports whether the caller should now arm the reply timer.
func (s *TCP) handleCommand(cmd input.Command) (startsReply bool, err error) {
	switch cmd.Kind {
	case input.CommandNone:
		if cmd.Empty {
			return false, nil
		}
		return s.send(protocol.NewMsg(s.display.get(), cmd.Msg))

	case input.CommandAuth:
		out := protocol.NewAuth(cmd.Username, cmd.Secret, cmd.DisplayName)
		if err := s.guardedSend(out); err != nil {
			s.metrics.AuthAttempts.WithLabelValues("err").Inc()
			return false, err
		}
		s.display.set(cmd.DisplayName)
		s.fsm.OnAuthSent()
		s.metrics.AuthAttempts.WithLabelValues("ok").Inc()
		return true, nil

	case input.CommandJoin:
		out := protocol.NewJoin(cmd.ChannelID, s.display.get())
		if err := s.guardedSend(out); err != nil {
			return false, err
		}
		s.fsm.OnJoinSent()
		return true, nil

	case input.CommandRename:
		s.display.set(cmd.DisplayName)
		return false, nil

	case input.CommandHelp:
		s.out.Out("Commands: /auth <username> <secret> <display>, /join <channel>, /rename <display>, /help")
		return false, nil

	default:
		return false, nil
	}
}

func (s *TCP) send(out protocol.Outgoing) (bool, error) {
	if err := s.guardedSend(out); err != nil {
		return false, err
	}
	return false, nil
}

// guardedSend checks the FSM, validates the message, encodes it and
// writes it to the connection.
func (s *TCP) guardedSend(out protocol.Outgoing) error {
	if err := s.fsm.GuardSend(out.Kind); err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return err
	}
	line, err := protocol.EncodeText(out)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(s.conn, line); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	s.metrics.MessagesSent.WithLabelValues(out.Kind.String()).Inc()
	return nil
}

// farewell sends a best-effort farewell message, fire-and-forget with
// no acknowledgement wait (TCP has no Confirm). SIGINT/EOF (cause ==
// nil) send a Bye; a malformed message, protocol violation, or reply
// timeout sends an Err instead (§4.8). A transport I/O failure exits
// immediately with no further network traffic (§7) — the connection
// has already demonstrated it cannot be written to. A peer-sent Err
// needs nothing further.
func (s *TCP) farewell(cause error) error {
	s.logger.Debug("session ending", logging.Phase(s.fsm.Phase().String()), logging.Err(cause))
	if s.fsm.Phase() == fsm.Start {
		return cause
	}

	var peerErr *protocol.PeerError
	if errors.As(cause, &peerErr) {
		return cause
	}

	if errors.Is(cause, protocol.ErrTransport) {
		return cause
	}

	var out protocol.Outgoing
	if cause == nil {
		out = protocol.NewBye(s.display.get())
	} else {
		out = protocol.NewErr(s.display.get(), errorReason(cause))
	}
	if err := out.Validate(); err == nil {
		if line, encErr := protocol.EncodeText(out); encErr == nil {
			_, _ = io.WriteString(s.conn, line)
		}
	}
	return cause
}
