package input

import (
	"errors"
	"strings"
	"testing"

	"github.com/klymenko/ipk25chat-client/internal/protocol"
)

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"auth", "/auth alice SeCrEt42 Alice_Wonder", Command{Kind: CommandAuth, Username: "alice", Secret: "SeCrEt42", DisplayName: "Alice_Wonder"}},
		{"join", "/join general", Command{Kind: CommandJoin, ChannelID: "general"}},
		{"rename", "/rename NewName", Command{Kind: CommandRename, DisplayName: "NewName"}},
		{"help", "/help", Command{Kind: CommandHelp}},
		{"empty", "", Command{Kind: CommandNone, Empty: true}},
		{"whitespace only", "   ", Command{Kind: CommandNone, Empty: true}},
		{"chat message", "hello world", Command{Kind: CommandNone, Msg: "hello world"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParse_InvalidLocalInput(t *testing.T) {
	tests := []string{
		"/auth alice secret",          // too few args
		"/join",                       // missing channel
		"/rename",                     // missing display
		"/help extra",                 // too many args
		"/bogus",                      // unknown command
		"/auth alice bad$secret name", // secret has invalid byte
		"/join " + strings.Repeat("a", 21),
	}

	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			if !errors.Is(err, protocol.ErrLocalInput) {
				t.Fatalf("Parse(%q) error = %v, want ErrLocalInput", line, err)
			}
		})
	}
}

func TestParse_CommandsDoNotTouchNetwork(t *testing.T) {
	// /help and /rename are purely local: parsing them never returns an
	// Outgoing to send, only a Command describing the local action.
	help, err := Parse("/help")
	if err != nil || help.Kind != CommandHelp {
		t.Fatalf("Parse(/help) = %+v, %v", help, err)
	}
	rename, err := Parse("/rename Bob")
	if err != nil || rename.Kind != CommandRename {
		t.Fatalf("Parse(/rename) = %+v, %v", rename, err)
	}
}
