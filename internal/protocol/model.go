// Package protocol implements the IPK25-CHAT wire formats: the CRLF-framed
// text variant used over TCP and the NUL-terminated binary variant used
// over UDP, plus the shared data model both variants carry.
package protocol

import (
	"fmt"
)

// Size limits from the protocol's field grammar.
const (
	MinNameLength    = 1
	MaxNameLength    = 20  // username, channel_id, display_name
	MinSecretLength  = 1
	MaxSecretLength  = 128
	MinContentLength = 1
	MaxContentLength = 60000
)

// MessageKind identifies the semantic type of a protocol message,
// independent of which wire variant carries it.
type MessageKind uint8

const (
	KindAuth MessageKind = iota
	KindJoin
	KindMsg
	KindErr
	KindBye
	KindReply
	KindConfirm // UDP only
	KindPing    // UDP only
)

// String returns the keyword used on the wire (uppercase for the text
// variant, informational for the binary variant).
func (k MessageKind) String() string {
	switch k {
	case KindAuth:
		return "AUTH"
	case KindJoin:
		return "JOIN"
	case KindMsg:
		return "MSG"
	case KindErr:
		return "ERR"
	case KindBye:
		return "BYE"
	case KindReply:
		return "REPLY"
	case KindConfirm:
		return "CONFIRM"
	case KindPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// Outgoing is a tagged value for a message the client builds and sends.
// Only the fields relevant to Kind are populated.
type Outgoing struct {
	Kind        MessageKind
	Username    string
	Secret      string
	DisplayName string
	ChannelID   string
	Content     string
}

// NewAuth builds an outgoing Auth intent.
func NewAuth(username, secret, displayName string) Outgoing {
	return Outgoing{Kind: KindAuth, Username: username, Secret: secret, DisplayName: displayName}
}

// NewJoin builds an outgoing Join intent.
func NewJoin(channelID, displayName string) Outgoing {
	return Outgoing{Kind: KindJoin, ChannelID: channelID, DisplayName: displayName}
}

// NewMsg builds an outgoing Msg intent.
func NewMsg(displayName, content string) Outgoing {
	return Outgoing{Kind: KindMsg, DisplayName: displayName, Content: content}
}

// NewErr builds an outgoing Err intent.
func NewErr(displayName, content string) Outgoing {
	return Outgoing{Kind: KindErr, DisplayName: displayName, Content: content}
}

// NewBye builds an outgoing Bye intent.
func NewBye(displayName string) Outgoing {
	return Outgoing{Kind: KindBye, DisplayName: displayName}
}

// Incoming is a tagged value for a message received from the peer.
type Incoming struct {
	Kind        MessageKind
	RefID       uint16 // Confirm, Reply
	OK          bool   // Reply
	DisplayName string // Msg, Err, Bye
	Content     string // Reply, Msg, Err
}

// Validate checks field-length and alphabet constraints from the data
// model (§3) for an outgoing message, independent of wire variant.
func (o Outgoing) Validate() error {
	switch o.Kind {
	case KindAuth:
		if err := validateNameAlphabet("username", o.Username); err != nil {
			return err
		}
		if err := validateSecret(o.Secret); err != nil {
			return err
		}
		return validateDisplayName(o.DisplayName)
	case KindJoin:
		if err := validateNameAlphabet("channel", o.ChannelID); err != nil {
			return err
		}
		return validateDisplayName(o.DisplayName)
	case KindMsg, KindErr:
		if err := validateDisplayName(o.DisplayName); err != nil {
			return err
		}
		return validateContent(o.Content)
	case KindBye:
		return validateDisplayName(o.DisplayName)
	default:
		return fmt.Errorf("%w: message kind %v is never client-built", ErrProtocolViolation, o.Kind)
	}
}

func isAlnumDashUnderscore(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-':
		return true
	default:
		return false
	}
}

func isPrintableExcludingSpaceLF(b byte) bool {
	return b >= 0x21 && b <= 0x7E
}

func isContentByte(b byte) bool {
	return b == 0x20 || b == 0x0A || (b >= 0x21 && b <= 0x7E)
}

func validateNameAlphabet(field, v string) error {
	if len(v) < MinNameLength || len(v) > MaxNameLength {
		return fmt.Errorf("%w: %s length %d out of range [%d,%d]", ErrMalformedMessage, field, len(v), MinNameLength, MaxNameLength)
	}
	for i := 0; i < len(v); i++ {
		if !isAlnumDashUnderscore(v[i]) {
			return fmt.Errorf("%w: %s contains invalid byte 0x%02x", ErrMalformedMessage, field, v[i])
		}
	}
	return nil
}

func validateSecret(v string) error {
	if len(v) < MinSecretLength || len(v) > MaxSecretLength {
		return fmt.Errorf("%w: secret length %d out of range [%d,%d]", ErrMalformedMessage, len(v), MinSecretLength, MaxSecretLength)
	}
	for i := 0; i < len(v); i++ {
		if !isAlnumDashUnderscore(v[i]) {
			return fmt.Errorf("%w: secret contains invalid byte 0x%02x", ErrMalformedMessage, v[i])
		}
	}
	return nil
}

func validateDisplayName(v string) error {
	if len(v) < MinNameLength || len(v) > MaxNameLength {
		return fmt.Errorf("%w: display_name length %d out of range [%d,%d]", ErrMalformedMessage, len(v), MinNameLength, MaxNameLength)
	}
	for i := 0; i < len(v); i++ {
		if !isPrintableExcludingSpaceLF(v[i]) {
			return fmt.Errorf("%w: display_name contains invalid byte 0x%02x", ErrMalformedMessage, v[i])
		}
	}
	return nil
}

func validateContent(v string) error {
	if len(v) < MinContentLength || len(v) > MaxContentLength {
		return fmt.Errorf("%w: content length %d out of range [%d,%d]", ErrMalformedMessage, len(v), MinContentLength, MaxContentLength)
	}
	for i := 0; i < len(v); i++ {
		if !isContentByte(v[i]) {
			return fmt.Errorf("%w: content contains invalid byte 0x%02x", ErrMalformedMessage, v[i])
		}
	}
	return nil
}
