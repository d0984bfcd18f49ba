package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary message type codes (§4.2).
type BinaryType uint8

const (
	BinaryConfirm BinaryType = 0x00
	BinaryReply   BinaryType = 0x01
	BinaryAuth    BinaryType = 0x02
	BinaryJoin    BinaryType = 0x03
	BinaryMsg     BinaryType = 0x04
	BinaryPing    BinaryType = 0xFD
	BinaryErr     BinaryType = 0xFE
	BinaryBye     BinaryType = 0xFF
)

func (t BinaryType) IsValid() bool {
	switch t {
	case BinaryConfirm, BinaryReply, BinaryAuth, BinaryJoin, BinaryMsg, BinaryPing, BinaryErr, BinaryBye:
		return true
	default:
		return false
	}
}

func (t BinaryType) String() string {
	switch t {
	case BinaryConfirm:
		return "CONFIRM"
	case BinaryReply:
		return "REPLY"
	case BinaryAuth:
		return "AUTH"
	case BinaryJoin:
		return "JOIN"
	case BinaryMsg:
		return "MSG"
	case BinaryPing:
		return "PING"
	case BinaryErr:
		return "ERR"
	case BinaryBye:
		return "BYE"
	default:
		return "UNKNOWN"
	}
}

// headerSize is the 1-byte type + 2-byte big-endian message id every
// binary-variant message begins with.
const headerSize = 3

// MaxBinaryMessageSize bounds the largest legal binary frame: a MSG/ERR
// carrying a maximum-length display name and a maximum-length content
// field, each with its terminator. This exceeds REPLY's fixed 3-byte
// prefix plus content.
const MaxBinaryMessageSize = headerSize + MaxNameLength + 1 /*terminator*/ + MaxContentLength + 1 /*terminator*/

// minBinaryBodyLength gives the minimum body length (after the 3-byte
// header) for each binary type, used to reject truncated frames before
// attempting to parse variable-length fields.
func minBinaryBodyLength(t BinaryType) int {
	switch t {
	case BinaryConfirm, BinaryPing:
		return 0
	case BinaryReply:
		return 1 + 2 + 1 // result + ref_id + empty content + terminator
	case BinaryAuth:
		return 1 + 1 + 1 // username\0 display\0 secret\0: the three terminators; empty fields are left to field validation
	case BinaryJoin:
		return 1 + 1 // channel\0 display\0
	case BinaryMsg, BinaryErr:
		return 1 + 1 // display\0 content\0
	case BinaryBye:
		return 1 // display\0
	default:
		return 0
	}
}

// EncodeBinary renders an outgoing message as a binary-variant datagram
// carrying the given message id. Confirm frames are not built here; see
// EncodeConfirm.
func EncodeBinary(o Outgoing, id uint16) ([]byte, error) {
	var bodyType BinaryType
	var body []byte

	switch o.Kind {
	case KindAuth:
		bodyType = BinaryAuth
		body = appendNulTerminated(nil, o.Username, o.DisplayName, o.Secret)
	case KindJoin:
		bodyType = BinaryJoin
		body = appendNulTerminated(nil, o.ChannelID, o.DisplayName)
	case KindMsg:
		bodyType = BinaryMsg
		body = appendNulTerminated(nil, o.DisplayName, o.Content)
	case KindErr:
		bodyType = BinaryErr
		body = appendNulTerminated(nil, o.DisplayName, o.Content)
	case KindBye:
		bodyType = BinaryBye
		body = appendNulTerminated(nil, o.DisplayName)
	default:
		return nil, fmt.Errorf("%w: kind %v has no binary encoding", ErrProtocolViolation, o.Kind)
	}

	return buildFrame(bodyType, id, body), nil
}

// EncodeConfirm renders a Confirm frame acknowledging refID.
func EncodeConfirm(refID uint16) []byte {
	return buildFrame(BinaryConfirm, refID, nil)
}

func buildFrame(t BinaryType, id uint16, body []byte) []byte {
	buf := make([]byte, headerSize+len(body))
	buf[0] = byte(t)
	binary.BigEndian.PutUint16(buf[1:3], id)
	copy(buf[3:], body)
	return buf
}

func appendNulTerminated(buf []byte, fields ...string) []byte {
	for _, f := range fields {
		buf = append(buf, f...)
		buf = append(buf, 0)
	}
	return buf
}

// DecodedBinary bundles a decoded Incoming message with the id carried in
// its header (the Confirm/Reply/etc. id assigned by whoever sent it).
type DecodedBinary struct {
	Incoming
	ID uint16
}

// DecodeBinary parses a received datagram into a DecodedBinary.
func DecodeBinary(data []byte) (DecodedBinary, error) {
	if len(data) > MaxBinaryMessageSize {
		return DecodedBinary{}, fmt.Errorf("%w: datagram of %d bytes exceeds maximum %d", ErrMalformedMessage, len(data), MaxBinaryMessageSize)
	}
	if len(data) < headerSize {
		return DecodedBinary{}, fmt.Errorf("%w: datagram of %d bytes shorter than header", ErrMalformedMessage, len(data))
	}

	t := BinaryType(data[0])
	if !t.IsValid() {
		return DecodedBinary{}, fmt.Errorf("%w: unknown binary type 0x%02x", ErrMalformedMessage, data[0])
	}
	id := binary.BigEndian.Uint16(data[1:3])
	body := data[3:]

	if len(body) < minBinaryBodyLength(t) {
		return DecodedBinary{}, fmt.Errorf("%w: %s body of %d bytes shorter than minimum %d", ErrMalformedMessage, t, len(body), minBinaryBodyLength(t))
	}

	switch t {
	case BinaryConfirm:
		return DecodedBinary{Incoming: Incoming{Kind: KindConfirm, RefID: id}, ID: id}, nil
	case BinaryPing:
		if len(body) != 0 {
			return DecodedBinary{}, fmt.Errorf("%w: PING must carry no body", ErrMalformedMessage)
		}
		return DecodedBinary{Incoming: Incoming{Kind: KindPing}, ID: id}, nil
	case BinaryReply:
		return decodeBinaryReply(body, id)
	case BinaryMsg:
		return decodeBinaryDisplayContent(KindMsg, body, id)
	case BinaryErr:
		return decodeBinaryDisplayContent(KindErr, body, id)
	case BinaryBye:
		name, rest, err := readNulTerminated(body)
		if err != nil {
			return DecodedBinary{}, err
		}
		if len(rest) != 0 {
			return DecodedBinary{}, fmt.Errorf("%w: BYE has trailing bytes", ErrMalformedMessage)
		}
		if err := validateDisplayName(name); err != nil {
			return DecodedBinary{}, err
		}
		return DecodedBinary{Incoming: Incoming{Kind: KindBye, DisplayName: name}, ID: id}, nil
	case BinaryAuth, BinaryJoin:
		return DecodedBinary{}, fmt.Errorf("%w: %s is never server-originated", ErrProtocolViolation, t)
	default:
		return DecodedBinary{}, fmt.Errorf("%w: unhandled binary type %s", ErrMalformedMessage, t)
	}
}

func decodeBinaryReply(body []byte, id uint16) (DecodedBinary, error) {
	if len(body) < 3 {
		return DecodedBinary{}, fmt.Errorf("%w: REPLY body too short", ErrMalformedMessage)
	}
	resultByte := body[0]
	var ok bool
	switch resultByte {
	case 0:
		ok = false
	case 1:
		ok = true
	default:
		return DecodedBinary{}, fmt.Errorf("%w: REPLY result byte must be 0 or 1, got %d", ErrMalformedMessage, resultByte)
	}
	refID := binary.BigEndian.Uint16(body[1:3])
	content, rest, err := readNulTerminated(body[3:])
	if err != nil {
		return DecodedBinary{}, err
	}
	if len(rest) != 0 {
		return DecodedBinary{}, fmt.Errorf("%w: REPLY has trailing bytes", ErrMalformedMessage)
	}
	if err := validateContent(content); err != nil {
		return DecodedBinary{}, err
	}
	return DecodedBinary{Incoming: Incoming{Kind: KindReply, OK: ok, RefID: refID, Content: content}, ID: id}, nil
}

func decodeBinaryDisplayContent(kind MessageKind, body []byte, id uint16) (DecodedBinary, error) {
	name, rest, err := readNulTerminated(body)
	if err != nil {
		return DecodedBinary{}, err
	}
	if err := validateDisplayName(name); err != nil {
		return DecodedBinary{}, err
	}
	content, rest2, err := readNulTerminated(rest)
	if err != nil {
		return DecodedBinary{}, err
	}
	if len(rest2) != 0 {
		return DecodedBinary{}, fmt.Errorf("%w: %s has trailing bytes", ErrMalformedMessage, kind)
	}
	if err := validateContent(content); err != nil {
		return DecodedBinary{}, err
	}
	return DecodedBinary{Incoming: Incoming{Kind: kind, DisplayName: name, Content: content}, ID: id}, nil
}

// readNulTerminated splits off the first NUL-terminated field, returning
// its content (without the terminator) and the remainder of buf.
func readNulTerminated(buf []byte) (field string, rest []byte, err error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), buf[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("%w: missing NUL terminator", ErrMalformedMessage)
}
