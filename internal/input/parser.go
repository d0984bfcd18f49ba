// Package input tokenizes lines read from standard input into local
// commands or outgoing chat messages (§4.4).
package input

import (
	"fmt"
	"strings"

	"github.com/klymenko/ipk25chat-client/internal/protocol"
)

// CommandKind identifies which local command a line names.
type CommandKind int

const (
	// CommandNone marks a line that carries no local command: either it
	// is blank (Empty is true) or it is outgoing chat content (Msg is
	// populated).
	CommandNone CommandKind = iota
	CommandAuth
	CommandJoin
	CommandRename
	CommandHelp
)

// Command is the parsed result of one stdin line.
type Command struct {
	Kind  CommandKind
	Empty bool

	// Populated for CommandAuth.
	Username string
	Secret   string

	// Populated for CommandJoin.
	ChannelID string

	// Populated for CommandAuth, CommandRename.
	DisplayName string

	// Populated when Kind == CommandNone and Empty == false: the line is
	// outgoing chat content.
	Msg string
}

// Parse tokenizes one trimmed stdin line. Local commands all start with
// "/"; anything else non-empty is outgoing chat content. Field alphabets
// and lengths are validated against §3's constraints.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)

	if trimmed == "" {
		return Command{Kind: CommandNone, Empty: true}, nil
	}

	if !strings.HasPrefix(trimmed, "/") {
		if err := validateMsgContent(trimmed); err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandNone, Msg: trimmed}, nil
	}

	fields := strings.Fields(trimmed)
	switch strings.ToLower(fields[0]) {
	case "/auth":
		return parseAuth(fields)
	case "/join":
		return parseJoin(fields)
	case "/rename":
		return parseRename(fields)
	case "/help":
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%w: /help takes no arguments", protocol.ErrLocalInput)
		}
		return Command{Kind: CommandHelp}, nil
	default:
		return Command{}, fmt.Errorf("%w: unrecognized command %q", protocol.ErrLocalInput, fields[0])
	}
}

func parseAuth(fields []string) (Command, error) {
	if len(fields) != 4 {
		return Command{}, fmt.Errorf("%w: usage: /auth <username> <secret> <display>", protocol.ErrLocalInput)
	}
	username, secret, display := fields[1], fields[2], fields[3]
	if err := validateAgainst(protocol.NewAuth(username, secret, display)); err != nil {
		return Command{}, err
	}
	return Command{Kind: CommandAuth, Username: username, Secret: secret, DisplayName: display}, nil
}

func parseJoin(fields []string) (Command, error) {
	if len(fields) != 2 {
		return Command{}, fmt.Errorf("%w: usage: /join <channel>", protocol.ErrLocalInput)
	}
	channel := fields[1]
	// Display name is not part of this command; validate the channel id
	// alone using the same alphabet Join shares with Auth's username.
	if err := validateAgainst(protocol.NewJoin(channel, "placeholder")); err != nil {
		return Command{}, err
	}
	return Command{Kind: CommandJoin, ChannelID: channel}, nil
}

func parseRename(fields []string) (Command, error) {
	if len(fields) != 2 {
		return Command{}, fmt.Errorf("%w: usage: /rename <display>", protocol.ErrLocalInput)
	}
	display := fields[1]
	if err := validateAgainst(protocol.NewBye(display)); err != nil {
		return Command{}, err
	}
	return Command{Kind: CommandRename, DisplayName: display}, nil
}

func validateAgainst(o protocol.Outgoing) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrLocalInput, err)
	}
	return nil
}

func validateMsgContent(content string) error {
	if err := protocol.NewMsg("placeholder", content).Validate(); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrLocalInput, err)
	}
	return nil
}
