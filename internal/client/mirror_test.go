package client

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/protocol"
)

func newTestMirror() (*Mirror, *State, *bytes.Buffer) {
	state := NewState()
	out := &bytes.Buffer{}
	return NewMirror(state, out, nil), state, out
}

func TestMirrorLoginAndPresence(t *testing.T) {
	m, state, out := newTestMirror()

	m.Handle(protocol.Succeeded(protocol.KindIdentify, "alice"))
	require.True(t, state.LoggedIn())
	assert.Equal(t, "alice", state.Username())
	assert.Contains(t, out.String(), "Logged in as alice")

	m.Handle(protocol.UserList{Users: []protocol.UserEntry{
		{Username: "alice", Status: protocol.StatusAvailable},
		{Username: "bob", Status: protocol.StatusAway},
	}})
	m.Handle(protocol.NewUser{Username: "carol"})
	m.Handle(protocol.NewStatus{Username: "bob", Status: protocol.StatusBusy})
	m.Handle(protocol.Succeeded(protocol.KindStatus, "AWAY"))

	snap := state.Snapshot()
	assert.Equal(t, protocol.StatusAway, snap.Status)
	assert.Equal(t, []protocol.UserEntry{
		{Username: "alice", Status: protocol.StatusAway},
		{Username: "bob", Status: protocol.StatusBusy},
		{Username: "carol", Status: protocol.StatusAvailable},
	}, snap.Users)

	m.Handle(protocol.Disconnected{Username: "bob"})
	snap = state.Snapshot()
	assert.Len(t, snap.Users, 2)
	assert.Contains(t, out.String(), "* bob disconnected")
}

func TestMirrorRooms(t *testing.T) {
	m, state, out := newTestMirror()
	m.Handle(protocol.Succeeded(protocol.KindIdentify, "bob"))

	m.Handle(protocol.Invitation{Room: "r1", From: "alice"})
	assert.Equal(t, map[string]string{"r1": "alice"}, state.Snapshot().Invites)
	assert.Contains(t, out.String(), `alice invited you to r1`)

	m.Handle(protocol.Succeeded(protocol.KindJoinRoom, "r1"))
	m.Handle(protocol.RoomUserList{Room: "r1", Users: []protocol.UserEntry{
		{Username: "alice", Status: protocol.StatusAvailable},
		{Username: "bob", Status: protocol.StatusAvailable},
	}})
	require.True(t, state.InRoom("r1"))
	assert.Empty(t, state.Snapshot().Invites)

	m.Handle(protocol.JoinedRoom{Room: "r1", Username: "carol"})
	m.Handle(protocol.JoinedRoom{Room: "r1", Username: "carol"})
	assert.Equal(t, []string{"alice", "bob", "carol"}, state.Snapshot().Rooms["r1"])

	m.Handle(protocol.LeftRoom{Room: "r1", Username: "alice"})
	assert.Equal(t, []string{"bob", "carol"}, state.Snapshot().Rooms["r1"])

	m.Handle(protocol.RoomTextFrom{Room: "r1", From: "carol", Body: "hey"})
	assert.Contains(t, out.String(), "[r1] <carol> hey")

	m.Handle(protocol.Disconnected{Username: "carol"})
	assert.Equal(t, []string{"bob"}, state.Snapshot().Rooms["r1"])

	m.Handle(protocol.Succeeded(protocol.KindLeaveRoom, "r1"))
	assert.False(t, state.InRoom("r1"))

	m.Handle(protocol.Succeeded(protocol.KindNewRoom, "mine"))
	assert.Equal(t, []string{"bob"}, state.Snapshot().Rooms["mine"])
}

func TestMirrorFailuresArePrinted(t *testing.T) {
	tests := []struct {
		resp protocol.Response
		want string
	}{
		{protocol.Response{Kind: protocol.KindIdentify, Detail: "USER_ALREADY_EXISTS", Target: "alice"}, "! login failed: that username is taken (alice)"},
		{protocol.Response{Kind: protocol.KindJoinRoom, Detail: "NOT_INVITED", Target: "r1"}, "! cannot join room: you were not invited (r1)"},
		{protocol.Response{Kind: protocol.KindInvite, Detail: "NOT_AUTHORIZED", Target: "r1"}, "! invitation failed: only the room owner can do that (r1)"},
		{protocol.Response{Kind: protocol.KindRoomText, Detail: "NOT_JOINED", Target: "r1"}, "! room message not sent: you are not in that room (r1)"},
		{protocol.Response{Kind: protocol.KindLeaveRoom, Detail: "NO_SUCH_ROOM", Target: "r9"}, "! cannot leave room: no such room (r9)"},
		{protocol.Response{Kind: protocol.KindText, Detail: "NO_SUCH_USER", Target: "zed"}, "! message not delivered: no such user (zed)"},
		{protocol.Response{Kind: protocol.KindInvalid, Detail: "MALFORMED_MESSAGE"}, "! the server rejected a malformed request: malformed message"},
		{protocol.Response{Kind: protocol.KindUsers, Detail: "SOMETHING_NEW"}, "! cannot list users: something_new"},
	}
	for _, tt := range tests {
		t.Run(string(tt.resp.Kind), func(t *testing.T) {
			m, state, out := newTestMirror()
			m.Handle(tt.resp)
			assert.Equal(t, tt.want+"\n", out.String())
			assert.False(t, state.LoggedIn())
		})
	}
}

func TestMirrorDisconnectResponseLogsOut(t *testing.T) {
	m, state, _ := newTestMirror()
	m.Handle(protocol.Succeeded(protocol.KindIdentify, "alice"))
	m.Handle(protocol.Succeeded(protocol.KindNewRoom, "r1"))

	m.Handle(protocol.Succeeded(protocol.KindDisconnect, "alice"))
	snap := state.Snapshot()
	assert.False(t, snap.LoggedIn)
	assert.Empty(t, snap.Username)
	assert.Empty(t, snap.Rooms)
	assert.True(t, state.Leaving())
}

func TestMirrorOnChange(t *testing.T) {
	calls := 0
	m := NewMirror(NewState(), &bytes.Buffer{}, func() { calls++ })
	m.Handle(protocol.NewUser{Username: "bob"})
	m.Handle(protocol.UnknownReply{})
	assert.Equal(t, 2, calls)
}
