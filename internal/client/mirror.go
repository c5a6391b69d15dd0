package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/Tyrowin/circe/internal/protocol"
)

// Mirror applies server pushes to the local State and prints them. It never
// talks back to the server.
type Mirror struct {
	state    *State
	out      io.Writer
	onChange func()
}

var _ protocol.EventHandler = (*Mirror)(nil)

// NewMirror returns a mirror printing to out. onChange, if set, runs after
// every event that may have altered the state.
func NewMirror(state *State, out io.Writer, onChange func()) *Mirror {
	return &Mirror{state: state, out: out, onChange: onChange}
}

// Handle dispatches one event.
func (m *Mirror) Handle(ev protocol.Event) {
	ev.Accept(m)
	if m.onChange != nil {
		m.onChange()
	}
}

func (m *Mirror) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.out, format+"\n", args...)
}

func (m *Mirror) NewUser(e protocol.NewUser) {
	m.state.addUser(e.Username)
	m.printf("* %s is online", e.Username)
}

func (m *Mirror) NewStatus(e protocol.NewStatus) {
	m.state.setStatus(e.Username, e.Status)
	m.printf("* %s is now %s", e.Username, e.Status)
}

func (m *Mirror) UserList(e protocol.UserList) {
	m.state.setUsers(e.Users)
	m.printf("Online users (%d):%s", len(e.Users), formatEntries(e.Users))
}

func (m *Mirror) TextFrom(e protocol.TextFrom) {
	m.printf("[%s -> you] %s", e.From, e.Body)
}

func (m *Mirror) PublicTextFrom(e protocol.PublicTextFrom) {
	m.printf("<%s> %s", e.From, e.Body)
}

func (m *Mirror) Invitation(e protocol.Invitation) {
	m.state.invited(e.Room, e.From)
	m.printf("* %s invited you to %s; type \\room join %s", e.From, e.Room, e.Room)
}

func (m *Mirror) JoinedRoom(e protocol.JoinedRoom) {
	m.state.addMember(e.Room, e.Username)
	m.printf("[%s] * %s joined", e.Room, e.Username)
}

func (m *Mirror) RoomUserList(e protocol.RoomUserList) {
	names := make([]string, len(e.Users))
	for i, u := range e.Users {
		names[i] = u.Username
	}
	m.state.joinRoom(e.Room, names)
	m.printf("[%s] members (%d):%s", e.Room, len(e.Users), formatEntries(e.Users))
}

func (m *Mirror) RoomTextFrom(e protocol.RoomTextFrom) {
	m.printf("[%s] <%s> %s", e.Room, e.From, e.Body)
}

func (m *Mirror) LeftRoom(e protocol.LeftRoom) {
	m.state.removeMember(e.Room, e.Username)
	m.printf("[%s] * %s left", e.Room, e.Username)
}

func (m *Mirror) Disconnected(e protocol.Disconnected) {
	m.state.removeUser(e.Username)
	m.printf("* %s disconnected", e.Username)
}

func (m *Mirror) UnknownReply(protocol.UnknownReply) {
	m.printf("! the server did not understand the last request")
}

// Response handles CLIENT_RESPONSE. Every kind is matched explicitly.
func (m *Mirror) Response(r protocol.Response) {
	if !r.Success {
		m.failed(r)
		return
	}

	switch r.Kind {
	case protocol.KindIdentify:
		m.state.login(r.Detail)
		m.printf("Logged in as %s", r.Detail)
	case protocol.KindStatus:
		m.state.setStatus(m.state.Username(), protocol.Status(r.Detail))
		m.printf("Status set to %s", r.Detail)
	case protocol.KindUsers:
		m.printf("ok")
	case protocol.KindText:
		m.printf("Message sent to %s", r.Detail)
	case protocol.KindPublicText:
		// The sender already sees its own line.
	case protocol.KindNewRoom:
		m.state.joinRoom(r.Detail, []string{m.state.Username()})
		m.printf("Room %s created", r.Detail)
	case protocol.KindInvite:
		m.printf("Invited %s to %s", r.Detail, r.Target)
	case protocol.KindJoinRoom:
		m.state.joinRoom(r.Detail, nil)
		m.printf("Joined %s", r.Detail)
	case protocol.KindRoomUsers:
		m.printf("ok")
	case protocol.KindRoomText:
		// Echoed locally by the shell.
	case protocol.KindLeaveRoom:
		m.state.leaveRoom(r.Detail)
		m.printf("Left %s", r.Detail)
	case protocol.KindDisconnect:
		m.state.setLeaving()
		m.state.logout()
		m.printf("Logged out")
	case protocol.KindInvalid:
		m.printf("ok")
	default:
		m.printf("! unexpected response %s", r.Kind)
	}
}

func (m *Mirror) failed(r protocol.Response) {
	subject := ""
	if r.Target != "" {
		subject = " (" + r.Target + ")"
	}

	switch r.Kind {
	case protocol.KindIdentify:
		m.printf("! login failed: %s%s", describe(r.Detail), subject)
	case protocol.KindStatus:
		m.printf("! status not changed: %s%s", describe(r.Detail), subject)
	case protocol.KindUsers:
		m.printf("! cannot list users: %s", describe(r.Detail))
	case protocol.KindText:
		m.printf("! message not delivered: %s%s", describe(r.Detail), subject)
	case protocol.KindPublicText:
		m.printf("! message not sent: %s", describe(r.Detail))
	case protocol.KindNewRoom:
		m.printf("! cannot create room: %s%s", describe(r.Detail), subject)
	case protocol.KindInvite:
		m.printf("! invitation failed: %s%s", describe(r.Detail), subject)
	case protocol.KindJoinRoom:
		m.printf("! cannot join room: %s%s", describe(r.Detail), subject)
	case protocol.KindRoomUsers:
		m.printf("! cannot list room members: %s%s", describe(r.Detail), subject)
	case protocol.KindRoomText:
		m.printf("! room message not sent: %s%s", describe(r.Detail), subject)
	case protocol.KindLeaveRoom:
		m.printf("! cannot leave room: %s%s", describe(r.Detail), subject)
	case protocol.KindDisconnect:
		m.printf("! logout failed: %s", describe(r.Detail))
	case protocol.KindInvalid:
		m.printf("! the server rejected a malformed request: %s", describe(r.Detail))
	default:
		m.printf("! %s failed: %s%s", r.Kind, describe(r.Detail), subject)
	}
}

var codeText = map[string]string{
	"USER_ALREADY_EXISTS": "that username is taken",
	"NO_SUCH_USER":        "no such user",
	"ROOM_ALREADY_EXISTS": "that room already exists",
	"NO_SUCH_ROOM":        "no such room",
	"NOT_INVITED":         "you were not invited",
	"NOT_AUTHORIZED":      "only the room owner can do that",
	"ALREADY_INVITED":     "already invited",
	"ALREADY_MEMBER":      "already a member",
	"NOT_JOINED":          "you are not in that room",
	"INVALID_STATUS":      "status must be AVAILABLE, BUSY, AWAY or OFFLINE",
	"INVALID_NAME":        "invalid name",
	"NOT_IDENTIFIED":      "log in first",
	"ALREADY_IDENTIFIED":  "already logged in",
	"MALFORMED_MESSAGE":   "malformed message",
}

// describe turns an error code into readable text, keeping unknown codes.
func describe(code string) string {
	if text, ok := codeText[code]; ok {
		return text
	}
	return strings.ToLower(code)
}

func formatEntries(users []protocol.UserEntry) string {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "\n  %s (%s)", u.Username, u.Status)
	}
	return b.String()
}
