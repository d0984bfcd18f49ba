package protocol

import (
	"fmt"
	"strings"
)

// CRLF terminates every text-variant frame.
const CRLF = "\r\n"

// maxAuthLineSize and maxContentLineSize are the two candidate longest
// grammar productions: AUTH (every field at its own maximum) and
// MSG/ERR (a display name plus a maximum-length content field, §3).
const (
	maxAuthLineSize    = len("AUTH ") + MaxNameLength + len(" AS ") + MaxNameLength + len(" USING ") + MaxSecretLength + len(CRLF)
	maxContentLineSize = len("MSG FROM ") + MaxNameLength + len(" IS ") + MaxContentLength + len(CRLF)
)

// MaxTextMessageSize is the largest a single CRLF-terminated frame may
// be. Content fields (up to 60000 bytes) dwarf every other production.
const MaxTextMessageSize = max(maxAuthLineSize, maxContentLineSize)

// EncodeText renders an outgoing message as a CRLF-terminated text-variant
// line. Keywords are emitted uppercase per §4.1; field validity is the
// caller's responsibility (Outgoing.Validate).
func EncodeText(o Outgoing) (string, error) {
	switch o.Kind {
	case KindAuth:
		return fmt.Sprintf("AUTH %s AS %s USING %s%s", o.Username, o.DisplayName, o.Secret, CRLF), nil
	case KindJoin:
		return fmt.Sprintf("JOIN %s AS %s%s", o.ChannelID, o.DisplayName, CRLF), nil
	case KindMsg:
		return fmt.Sprintf("MSG FROM %s IS %s%s", o.DisplayName, o.Content, CRLF), nil
	case KindErr:
		return fmt.Sprintf("ERR FROM %s IS %s%s", o.DisplayName, o.Content, CRLF), nil
	case KindBye:
		return fmt.Sprintf("BYE FROM %s%s", o.DisplayName, CRLF), nil
	default:
		return "", fmt.Errorf("%w: kind %v has no text encoding", ErrProtocolViolation, o.Kind)
	}
}

// DecodeText parses one CRLF-terminated line (terminator included) into an
// Incoming message. Keyword matching is case-insensitive on decode, per
// §9's normative note.
func DecodeText(line string) (Incoming, error) {
	if len(line) > MaxTextMessageSize {
		return Incoming{}, fmt.Errorf("%w: line of %d bytes exceeds maximum %d", ErrMalformedMessage, len(line), MaxTextMessageSize)
	}
	if !strings.HasSuffix(line, CRLF) {
		return Incoming{}, fmt.Errorf("%w: line not CRLF-terminated", ErrMalformedMessage)
	}
	body := line[:len(line)-len(CRLF)]
	fields := strings.Split(body, " ")
	if len(fields) == 0 {
		return Incoming{}, fmt.Errorf("%w: empty line", ErrMalformedMessage)
	}

	keyword := strings.ToUpper(fields[0])
	switch keyword {
	case "REPLY":
		return decodeTextReply(fields)
	case "MSG":
		return decodeTextFromIs("MSG", KindMsg, fields)
	case "ERR":
		return decodeTextFromIs("ERR", KindErr, fields)
	case "BYE":
		return decodeTextBye(fields)
	default:
		return Incoming{}, fmt.Errorf("%w: unrecognized keyword %q", ErrMalformedMessage, fields[0])
	}
}

// decodeTextReply parses: REPLY (OK|NOK) IS <content>
func decodeTextReply(fields []string) (Incoming, error) {
	if len(fields) < 3 {
		return Incoming{}, fmt.Errorf("%w: REPLY requires at least 3 fields", ErrMalformedMessage)
	}
	result := strings.ToUpper(fields[1])
	var ok bool
	switch result {
	case "OK":
		ok = true
	case "NOK":
		ok = false
	default:
		return Incoming{}, fmt.Errorf("%w: REPLY result must be OK or NOK, got %q", ErrMalformedMessage, fields[1])
	}
	if !strings.EqualFold(fields[2], "IS") {
		return Incoming{}, fmt.Errorf("%w: REPLY missing IS keyword", ErrMalformedMessage)
	}
	content := strings.Join(fields[3:], " ")
	if err := validateContent(content); err != nil {
		return Incoming{}, err
	}
	return Incoming{Kind: KindReply, OK: ok, Content: content}, nil
}

// decodeTextFromIs parses: <KEYWORD> FROM <display> IS <content>
func decodeTextFromIs(name string, kind MessageKind, fields []string) (Incoming, error) {
	if len(fields) < 5 {
		return Incoming{}, fmt.Errorf("%w: %s requires at least 5 fields", ErrMalformedMessage, name)
	}
	if !strings.EqualFold(fields[1], "FROM") {
		return Incoming{}, fmt.Errorf("%w: %s missing FROM keyword", ErrMalformedMessage, name)
	}
	displayName := fields[2]
	if err := validateDisplayName(displayName); err != nil {
		return Incoming{}, err
	}
	if !strings.EqualFold(fields[3], "IS") {
		return Incoming{}, fmt.Errorf("%w: %s missing IS keyword", ErrMalformedMessage, name)
	}
	content := strings.Join(fields[4:], " ")
	if err := validateContent(content); err != nil {
		return Incoming{}, err
	}
	return Incoming{Kind: kind, DisplayName: displayName, Content: content}, nil
}

// decodeTextBye parses: BYE FROM <display>
func decodeTextBye(fields []string) (Incoming, error) {
	if len(fields) != 3 {
		return Incoming{}, fmt.Errorf("%w: BYE requires exactly 3 fields", ErrMalformedMessage)
	}
	if !strings.EqualFold(fields[1], "FROM") {
		return Incoming{}, fmt.Errorf("%w: BYE missing FROM keyword", ErrMalformedMessage)
	}
	displayName := fields[2]
	if err := validateDisplayName(displayName); err != nil {
		return Incoming{}, err
	}
	return Incoming{Kind: KindBye, DisplayName: displayName}, nil
}
