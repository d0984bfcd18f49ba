// Package session drives the event loop that ties the protocol engine
// together: reading user input, sending and receiving wire messages,
// tracking FSM phase, and orchestrating shutdown (§4.3, §4.6-4.8).
//
// cmd/ipk25chat-client owns argument parsing, hostname resolution and
// raw terminal I/O; it hands this package an io.Reader for stdin lines
// and an Output for formatted results, per §1's division of labor.
package session

import (
	"fmt"
	"io"

	"github.com/klymenko/ipk25chat-client/internal/protocol"
)

// Output renders the user-visible text a session produces. stdout and
// stderr are separated exactly as §6 specifies: Reply/Msg results on
// Out, peer Err and local diagnostics on Err.
type Output interface {
	Out(line string)
	Err(line string)
}

// stdOutput writes directly to the given writers, one line at a time.
type stdOutput struct {
	out io.Writer
	err io.Writer
}

// NewOutput builds an Output writing to the given stdout/stderr streams.
func NewOutput(out, err io.Writer) Output {
	return &stdOutput{out: out, err: err}
}

func (o *stdOutput) Out(line string) { fmt.Fprintln(o.out, line) }
func (o *stdOutput) Err(line string) { fmt.Fprintln(o.err, line) }

// printReply renders a Reply per §6: "Action Success: <content>" or
// "Action Failure: <content>", to stdout.
func printReply(out Output, in protocol.Incoming) {
	if in.OK {
		out.Out(fmt.Sprintf("Action Success: %s", in.Content))
	} else {
		out.Out(fmt.Sprintf("Action Failure: %s", in.Content))
	}
}

// printMsg renders an incoming Msg: "<display>: <content>", to stdout.
func printMsg(out Output, in protocol.Incoming) {
	out.Out(fmt.Sprintf("%s: %s", in.DisplayName, in.Content))
}

// printPeerErr renders an incoming Err: "ERROR FROM <display>: <content>",
// to stderr.
func printPeerErr(out Output, in protocol.Incoming) {
	out.Err(fmt.Sprintf("ERROR FROM %s: %s", in.DisplayName, in.Content))
}

// printLocalErr renders a local diagnostic: "ERROR: <text>", to stderr.
func printLocalErr(out Output, err error) {
	out.Err(fmt.Sprintf("ERROR: %v", err))
}

// errorReason renders err as valid Msg/Err content (§3's printable-ASCII
// plus space/LF alphabet), for the farewell Err the shutdown orchestrator
// sends on a locally detected fatal condition (§4.8).
func errorReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	s := err.Error()
	if len(s) > 200 {
		s = s[:200]
	}
	b := []byte(s)
	for i, c := range b {
		if !(c == 0x20 || c == 0x0A || (c >= 0x21 && c <= 0x7E)) {
			b[i] = '?'
		}
	}
	if len(b) == 0 {
		return "error"
	}
	return string(b)
}

// displayName is a small mutable cell for the session's current display
// name, updated by /rename and whenever an Auth is sent (§4.4). It is
// empty until then, and it keeps the Auth's name even if the Reply to
// that Auth is negative.
type displayName struct {
	name string
}

func (d *displayName) set(name string) { d.name = name }
func (d *displayName) get() string     { return d.name }
