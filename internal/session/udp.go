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

// waitState is the tagged variant replacing the three mutually-exclusive
// wait flags of §4 ("awaiting_confirm" / "awaiting_reply" /
// "awaiting_bye_confirm"): at most one holds at any instant, so a single
// enum expresses invariant 1 directly instead of by convention.
type waitState int

const (
	waitIdle waitState = iota
	waitConfirm
	waitReply
	waitByeConfirm
)

func (w waitState) String() string {
	switch w {
	case waitConfirm:
		return "awaiting_confirm"
	case waitReply:
		return "awaiting_reply"
	case waitByeConfirm:
		return "awaiting_bye_confirm"
	default:
		return "idle"
	}
}

// outstanding is the single in-flight message §4.7 describes: its
// encoded bytes, id, and remaining retransmission budget. A terminal
// message (the farewell Bye or Err of §4.8) ends the session once its
// own Confirm arrives, or once its retransmission budget runs out.
type outstanding struct {
	id          uint16
	frame       []byte
	budget      uint8
	expectReply bool
	sentAt      time.Time
	terminal    bool
	terminalErr error
}

type udpDatagram struct {
	decoded protocol.DecodedBinary
	from    *net.UDPAddr
	err     error
}

// UDP drives one client session over the binary wire variant, including
// the reliability sublayer: sequencing, timed retransmission, duplicate
// suppression, and peer-port rebinding (§4.7).
type UDP struct {
	conn  *net.UDPConn
	peer  *net.UDPAddr
	bound bool // true once the first accepted Reply has relocated peer

	stdin   *bufio.Scanner
	out     Output
	logger  *logging.Logger
	metrics *metrics.Metrics

	confirmTimeout time.Duration
	maxRetrans     uint8
	replyTimeout   time.Duration

	fsm     *fsm.FSM
	display displayName

	nextID uint16
	seen   map[uint16]struct{}

	state waitState
	pend  *outstanding
}

// NewUDP builds a UDP session. conn is an already-bound, unconnected
// UDP socket (net.ListenUDP); peer is the initially configured server
// address, superseded by the first accepted Reply's source (§4, "Peer
// address").
func NewUDP(conn *net.UDPConn, peer *net.UDPAddr, stdin io.Reader, out Output, logger *logging.Logger, m *metrics.Metrics, confirmTimeout time.Duration, maxRetrans uint8, replyTimeout time.Duration) *UDP {
	stdinScanner := bufio.NewScanner(stdin)
	stdinScanner.Buffer(make([]byte, 0, 4096), protocol.MaxContentLength+1)

	return &UDP{
		conn:           conn,
		peer:           peer,
		stdin:          stdinScanner,
		out:            out,
		logger:         logger,
		metrics:        m,
		confirmTimeout: confirmTimeout,
		maxRetrans:     maxRetrans,
		replyTimeout:   replyTimeout,
		fsm:            fsm.New(),
		seen:           make(map[uint16]struct{}),
	}
}

// Run executes the event loop until shutdown or a fatal error (§4.7,
// §4.8). SIGINT/EOF send a farewell Bye; a locally detected fatal
// condition sends a farewell Err instead; either way only its own
// Confirm (or budget exhaustion) ends the process.
func (s *UDP) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvCh := make(chan udpDatagram, 8)
	go s.readNet(ctx, recvCh)

	resume := make(chan struct{}, 1)
	stdinCh := make(chan stdinLine, 8)
	go s.readStdin(ctx, stdinCh, resume)

	var timer *time.Timer
	var timerC <-chan time.Time
	armTimer := func(d time.Duration) {
		timer = time.NewTimer(d)
		timerC = timer.C
	}
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	resumeInput := func() {
		if s.state == waitIdle {
			select {
			case resume <- struct{}{}:
			default:
			}
		}
	}

	terminating := false

	// beginShutdown starts the farewell exchange of §4.8. SIGINT/EOF
	// (cause == nil) send a Bye; a malformed message, protocol
	// violation, or reply timeout sends an Err instead, under the same
	// reliability discipline; retransmission exhaustion and transport
	// I/O failure exit immediately with no further network traffic
	// (§7); a peer-sent Err needs no further message, its Confirm
	// already went out in onDatagram.
	beginShutdown := func(cause error) (done bool, finalErr error) {
		if terminating {
			return false, nil
		}
		terminating = true
		s.logger.Debug("session ending", logging.Phase(s.fsm.Phase().String()), logging.Err(cause))
		if s.fsm.Phase() == fsm.Start {
			return true, cause
		}

		var peerErr *protocol.PeerError
		if errors.As(cause, &peerErr) {
			return true, cause
		}

		if errors.Is(cause, protocol.ErrRetransmissionExhausted) || errors.Is(cause, protocol.ErrTransport) {
			stopTimer()
			s.state = waitIdle
			s.pend = nil
			return true, cause
		}

		stopTimer()
		s.state = waitIdle
		s.pend = nil

		var out protocol.Outgoing
		nextState := waitConfirm
		if cause == nil {
			out = protocol.NewBye(s.display.get())
			nextState = waitByeConfirm
		} else {
			out = protocol.NewErr(s.display.get(), errorReason(cause))
		}
		if err := s.beginSend(out, false, nextState); err != nil {
			return true, cause
		}
		s.pend.terminal = true
		s.pend.terminalErr = cause
		armTimer(s.confirmTimeout)
		return false, nil
	}

	resumeInput()

	for {
		select {
		case <-ctx.Done():
			if done, err := beginShutdown(nil); done {
				return err
			}

		case <-timerC:
			done, err := s.onTimerFired(armTimer, beginShutdown)
			if done {
				return err
			}

		case dg := <-recvCh:
			if dg.err != nil {
				if errors.Is(dg.err, io.EOF) {
					return nil
				}
				printLocalErr(s.out, dg.err)
				if done, err := beginShutdown(dg.err); done {
					return err
				}
				continue
			}
			done, err := s.onDatagram(dg, stopTimer, armTimer, resumeInput, beginShutdown)
			if done {
				return err
			}

		case line := <-stdinCh:
			if line.err != nil {
				if errors.Is(line.err, io.EOF) {
					if done, err := beginShutdown(nil); done {
						return err
					}
					continue
				}
				printLocalErr(s.out, line.err)
				if done, err := beginShutdown(line.err); done {
					return err
				}
				continue
			}
			if terminating {
				continue
			}
			if err := s.dispatchCommand(line.cmd, armTimer); err != nil {
				printLocalErr(s.out, err)
				resumeInput()
			} else if s.state == waitIdle {
				resumeInput()
			}
		}
	}
}

// onTimerFired handles confirm/reply timer expiry: retransmission with
// budget, or the terminal timeout/exhaustion errors of §7. A terminal
// outstanding message (farewell Bye or Err) that exhausts its budget
// ends the session with its own cause rather than recursing into a
// second shutdown attempt.
func (s *UDP) onTimerFired(armTimer func(time.Duration), beginShutdown func(error) (bool, error)) (done bool, err error) {
	switch s.state {
	case waitReply:
		err := fmt.Errorf("%w: no reply within %s", protocol.ErrReplyTimeout, s.replyTimeout)
		s.metrics.SessionErrors.WithLabelValues("timeout").Inc()
		printLocalErr(s.out, err)
		return beginShutdown(err)

	case waitConfirm, waitByeConfirm:
		if s.pend == nil {
			return false, nil
		}
		if s.pend.budget == 0 {
			if s.pend.terminal {
				return true, s.pend.terminalErr
			}
			err := fmt.Errorf("%w: no confirm after %d retransmissions", protocol.ErrRetransmissionExhausted, s.maxRetrans)
			s.metrics.SessionErrors.WithLabelValues("retransmission").Inc()
			printLocalErr(s.out, err)
			return beginShutdown(err)
		}
		if _, werr := s.conn.WriteToUDP(s.pend.frame, s.peer); werr != nil {
			if s.pend.terminal {
				return true, s.pend.terminalErr
			}
			return beginShutdown(fmt.Errorf("%w: %v", protocol.ErrTransport, werr))
		}
		s.pend.budget--
		s.metrics.Retransmits.Inc()
		armTimer(s.confirmTimeout)
		return false, nil

	default:
		return false, nil
	}
}

// onDatagram applies one decoded, already-well-formed datagram: Confirm
// matching against the outstanding message, or the unconditional-Confirm
// handling of every other inbound kind (§4.7).
func (s *UDP) onDatagram(dg udpDatagram, stopTimer func(), armTimer func(time.Duration), resumeInput func(), beginShutdown func(error) (bool, error)) (done bool, err error) {
	in := dg.decoded.Incoming

	if in.Kind == protocol.KindConfirm {
		return s.onConfirm(dg.decoded.ID, stopTimer, armTimer, resumeInput, beginShutdown)
	}

	// The one-time peer-port rebind happens before the Confirm is sent,
	// so the Confirm itself already targets the new address (§4, "Peer
	// address"; scenario B).
	if in.Kind == protocol.KindReply && !s.bound && s.state == waitReply && s.pend != nil && in.RefID == s.pend.id {
		s.peer = dg.from
		s.bound = true
	}

	// Every non-Confirm inbound message is acknowledged unconditionally,
	// before FSM legality or duplicate status is even considered.
	s.sendConfirm(dg.decoded.ID)

	if in.Kind == protocol.KindPing {
		return false, nil
	}

	if guardErr := s.fsm.GuardRecv(in.Kind, true); guardErr != nil {
		s.metrics.SessionErrors.WithLabelValues("protocol").Inc()
		printLocalErr(s.out, guardErr)
		return beginShutdown(guardErr)
	}

	if _, dup := s.seen[dg.decoded.ID]; dup {
		s.metrics.Duplicates.Inc()
		return false, nil
	}
	s.seen[dg.decoded.ID] = struct{}{}
	s.metrics.MessagesRecv.WithLabelValues(in.Kind.String()).Inc()

	switch in.Kind {
	case protocol.KindReply:
		if s.state != waitReply || s.pend == nil || in.RefID != s.pend.id {
			return false, nil // ref_id mismatch: confirmed already, nothing else to do
		}
		stopTimer()
		s.fsm.OnReplyReceived(in.OK)
		printReply(s.out, in)
		s.state = waitIdle
		s.pend = nil
		resumeInput()
		return false, nil

	case protocol.KindMsg:
		printMsg(s.out, in)
		return false, nil

	case protocol.KindErr:
		printPeerErr(s.out, in)
		return beginShutdown(&protocol.PeerError{DisplayName: in.DisplayName, Content: in.Content})

	case protocol.KindBye:
		return true, nil

	default:
		return beginShutdown(fmt.Errorf("%w: unexpected %s", protocol.ErrProtocolViolation, in.Kind))
	}
}

// onConfirm applies a Confirm matching the outstanding message (§4.7
// step 4). Confirms with a non-matching id, and repeated Confirms that
// arrive once the message is already past its confirm wait, are ignored.
func (s *UDP) onConfirm(id uint16, stopTimer func(), armTimer func(time.Duration), resumeInput func(), beginShutdown func(error) (bool, error)) (done bool, err error) {
	if s.pend == nil || id != s.pend.id {
		return false, nil
	}
	if s.state != waitConfirm && s.state != waitByeConfirm {
		return false, nil
	}
	stopTimer()
	s.metrics.ObserveConfirmLatency(time.Since(s.pend.sentAt))
	s.nextID++

	if s.pend.terminal {
		cause := s.pend.terminalErr
		s.state = waitIdle
		s.pend = nil
		return true, cause
	}

	switch s.state {
	case waitConfirm:
		if s.pend.expectReply {
			s.state = waitReply
			s.pend.budget = s.maxRetrans
			armTimer(s.replyTimeout)
			return false, nil
		}
		s.state = waitIdle
		s.pend = nil
		resumeInput()
		return false, nil

	default:
		return false, nil
	}
}

// dispatchCommand turns a parsed stdin command into an outgoing message
// and begins its reliable send, enforcing the single in-flight
// invariant.
func (s *UDP) dispatchCommand(cmd input.Command, armTimer func(time.Duration)) error {
	if s.state != waitIdle {
		return fmt.Errorf("%w: a message is still awaiting confirmation", protocol.ErrLocalInput)
	}

	switch cmd.Kind {
	case input.CommandNone:
		if cmd.Empty {
			return nil
		}
		return s.beginSendArmed(protocol.NewMsg(s.display.get(), cmd.Msg), false, armTimer)

	case input.CommandAuth:
		out := protocol.NewAuth(cmd.Username, cmd.Secret, cmd.DisplayName)
		if err := s.beginSendArmed(out, true, armTimer); err != nil {
			s.metrics.AuthAttempts.WithLabelValues("err").Inc()
			return err
		}
		s.display.set(cmd.DisplayName)
		s.fsm.OnAuthSent()
		s.metrics.AuthAttempts.WithLabelValues("ok").Inc()
		return nil

	case input.CommandJoin:
		out := protocol.NewJoin(cmd.ChannelID, s.display.get())
		if err := s.beginSendArmed(out, true, armTimer); err != nil {
			return err
		}
		s.fsm.OnJoinSent()
		return nil

	case input.CommandRename:
		s.display.set(cmd.DisplayName)
		return nil

	case input.CommandHelp:
		s.out.Out("Commands: /auth <username> <secret> <display>, /join <channel>, /rename <display>, /help")
		return nil

	default:
		return nil
	}
}

func (s *UDP) beginSendArmed(out protocol.Outgoing, expectReply bool, armTimer func(time.Duration)) error {
	if err := s.beginSend(out, expectReply, waitConfirm); err != nil {
		return err
	}
	armTimer(s.confirmTimeout)
	return nil
}

// beginSend guards, validates, encodes and sends a message, arming the
// outstanding record for retransmission. The caller arms the timer.
func (s *UDP) beginSend(out protocol.Outgoing, expectReply bool, nextState waitState) error {
	if err := s.fsm.GuardSend(out.Kind); err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return err
	}

	id := s.nextID
	frame, err := protocol.EncodeBinary(out, id)
	if err != nil {
		return err
	}
	if _, err := s.conn.WriteToUDP(frame, s.peer); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	s.metrics.MessagesSent.WithLabelValues(out.Kind.String()).Inc()

	s.state = nextState
	s.pend = &outstanding{id: id, frame: frame, budget: s.maxRetrans, expectReply: expectReply, sentAt: time.Now()}
	return nil
}

func (s *UDP) sendConfirm(refID uint16) {
	_, _ = s.conn.WriteToUDP(protocol.EncodeConfirm(refID), s.peer)
}

func (s *UDP) readNet(ctx context.Context, out chan<- udpDatagram) {
	buf := make([]byte, protocol.MaxBinaryMessageSize+1)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case out <- udpDatagram{err: fmt.Errorf("%w: %v", protocol.ErrTransport, err)}:
			case <-ctx.Done():
			}
			return
		}
		decoded, derr := protocol.DecodeBinary(buf[:n])
		select {
		case out <- udpDatagram{decoded: decoded, from: from, err: derr}:
		case <-ctx.Done():
			return
		}
	}
}

// readStdin blocks on a resume token before each read (invariant 3).
func (s *UDP) readStdin(ctx context.Context, out chan<- stdinLine, resume <-chan struct{}) {
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
