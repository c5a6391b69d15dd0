package client

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tyrowin/circe/internal/protocol"
)

// Sender delivers one request to the server.
type Sender interface {
	Send(protocol.Message) error
}

// ErrQuit is returned by Execute when the user asked to leave.
var ErrQuit = errors.New("quit")

// commandFunc runs one command with its raw argument text.
type commandFunc func(sh *Shell, args string) error

// Shell turns input lines into requests. Commands start with a backslash;
// any other non-empty line is a public message.
type Shell struct {
	state  *State
	sender Sender
	out    io.Writer

	commands map[string]commandFunc
}

// NewShell returns a shell that sends through sender and prints to out.
func NewShell(state *State, sender Sender, out io.Writer) *Shell {
	return &Shell{
		state:  state,
		sender: sender,
		out:    out,
		commands: map[string]commandFunc{
			"help":   (*Shell).help,
			"echo":   (*Shell).echo,
			"login":  (*Shell).login,
			"logout": (*Shell).logout,
			"status": (*Shell).status,
			"users":  (*Shell).users,
			"msg":    (*Shell).msg,
			"all":    (*Shell).all,
			"room":   (*Shell).room,
			"quit":   (*Shell).quit,
		},
	}
}

const helpText = `Commands:
  \help                       show this help
  \echo <text>                print text locally
  \login <username>           log in (up to 8 characters)
  \logout                     log out and disconnect
  \status <AVAILABLE|BUSY|AWAY|OFFLINE>
  \users                      list online users
  \msg <user> <text>          private message
  \all <text>                 public message (or just type the text)
  \room new <room>            create a room
  \room invite <room> <user>  invite a user (owner only)
  \room join <room>           join a room you were invited to
  \room users <room>          list room members
  \room text <room> <text>    message a room
  \room leave <room>          leave a room
  \quit                       exit`

func (sh *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(sh.out, format+"\n", args...)
}

// Execute runs one input line. It returns ErrQuit when the client should
// exit, or the error from sending a request. Local mistakes are printed, not
// returned.
func (sh *Shell) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, `\`) {
		return sh.all(line)
	}

	name, args := splitWord(line[1:])
	cmd, ok := sh.commands[strings.ToLower(name)]
	if !ok {
		sh.printf("unknown command: \\%s (try \\help)", name)
		return nil
	}
	return cmd(sh, args)
}

// splitWord returns the first word of s and the trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func (sh *Shell) send(r protocol.Request) error {
	return sh.sender.Send(r.Message())
}

// requireLogin prints a local notice and reports false when not logged in.
func (sh *Shell) requireLogin() bool {
	if sh.state.LoggedIn() {
		return true
	}
	sh.printf("not logged in (use \\login <username>)")
	return false
}

func (sh *Shell) usage(text string) error {
	sh.printf("usage: %s", text)
	return nil
}

func (sh *Shell) help(string) error {
	sh.printf("%s", helpText)
	return nil
}

func (sh *Shell) echo(args string) error {
	sh.printf("%s", args)
	return nil
}

func (sh *Shell) login(args string) error {
	name, rest := splitWord(args)
	if name == "" || rest != "" {
		return sh.usage(`\login <username>`)
	}
	if sh.state.LoggedIn() {
		sh.printf("already logged in as %s", sh.state.Username())
		return nil
	}
	return sh.send(protocol.Identify{Username: name})
}

func (sh *Shell) logout(string) error {
	if !sh.requireLogin() {
		return nil
	}
	sh.state.setLeaving()
	return sh.send(protocol.Disconnect{})
}

func (sh *Shell) status(args string) error {
	if args == "" {
		return sh.usage(`\status <AVAILABLE|BUSY|AWAY|OFFLINE>`)
	}
	if !sh.requireLogin() {
		return nil
	}
	if _, err := protocol.ParseStatus(args); err != nil {
		sh.printf("invalid status %q: use AVAILABLE, BUSY, AWAY or OFFLINE", args)
		return nil
	}
	return sh.send(protocol.SetStatus{Status: args})
}

func (sh *Shell) users(string) error {
	if !sh.requireLogin() {
		return nil
	}
	return sh.send(protocol.Users{})
}

func (sh *Shell) msg(args string) error {
	to, body := splitWord(args)
	if to == "" || body == "" {
		return sh.usage(`\msg <user> <text>`)
	}
	if !sh.requireLogin() {
		return nil
	}
	return sh.send(protocol.Text{To: to, Body: body})
}

func (sh *Shell) all(args string) error {
	if args == "" {
		return sh.usage(`\all <text>`)
	}
	if !sh.requireLogin() {
		return nil
	}
	sh.printf("<%s> %s", sh.state.Username(), args)
	return sh.send(protocol.PublicText{Body: args})
}

func (sh *Shell) quit(string) error {
	if sh.state.LoggedIn() {
		sh.state.setLeaving()
		if err := sh.send(protocol.Disconnect{}); err != nil {
			return errors.Join(ErrQuit, err)
		}
	}
	return ErrQuit
}

func (sh *Shell) room(args string) error {
	sub, rest := splitWord(args)
	room, tail := splitWord(rest)

	switch strings.ToLower(sub) {
	case "new", "join", "users", "leave":
		if room == "" || tail != "" {
			return sh.usage(`\room ` + strings.ToLower(sub) + ` <room>`)
		}
	case "invite":
		if room == "" || tail == "" || strings.ContainsAny(tail, " \t") {
			return sh.usage(`\room invite <room> <user>`)
		}
	case "text":
		if room == "" || tail == "" {
			return sh.usage(`\room text <room> <text>`)
		}
	default:
		return sh.usage(`\room new|invite|join|users|text|leave ...`)
	}
	if !sh.requireLogin() {
		return nil
	}

	switch strings.ToLower(sub) {
	case "new":
		return sh.send(protocol.NewRoom{Room: room})
	case "invite":
		return sh.send(protocol.Invite{Room: room, User: tail})
	case "join":
		return sh.send(protocol.JoinRoom{Room: room})
	case "users":
		return sh.send(protocol.RoomUsers{Room: room})
	case "text":
		sh.printf("[%s] <%s> %s", room, sh.state.Username(), tail)
		return sh.send(protocol.RoomText{Room: room, Body: tail})
	default:
		return sh.send(protocol.LeaveRoom{Room: room})
	}
}
