package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/registry"
)

type roomFixture struct {
	users *registry.Users
	rooms *registry.Rooms
	peers map[string]*recordingPeer
}

func newRoomFixture(t *testing.T, names ...string) *roomFixture {
	t.Helper()
	f := &roomFixture{users: registry.NewUsers(), peers: make(map[string]*recordingPeer)}
	f.rooms = registry.NewRooms(f.users)
	for _, n := range names {
		f.peers[n] = &recordingPeer{}
		require.NoError(t, f.users.Add(n, protocol.StatusAvailable, f.peers[n]))
	}
	return f
}

// join invites and admits username on behalf of the room owner.
func (f *roomFixture) join(t *testing.T, room, owner, username string) {
	t.Helper()
	require.NoError(t, f.rooms.Invite(room, owner, username))
	_, err := f.rooms.Join(room, username)
	require.NoError(t, err)
}

func TestRoomsCreate(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob")

	require.NoError(t, f.rooms.Create("lobby", "alice"))
	assert.ErrorIs(t, f.rooms.Create("lobby", "bob"), registry.ErrDuplicateRoom)
	assert.ErrorIs(t, f.rooms.Create("", "bob"), registry.ErrInvalidName)
	assert.ErrorIs(t, f.rooms.Create("a-name-that-is-too-long", "bob"), registry.ErrInvalidName)

	members, err := f.rooms.Members("lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	owner, err := f.rooms.Owner("lobby")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, 1, f.rooms.Len())
}

func TestRoomsInviteRules(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.rooms.Create("lobby", "alice"))

	tests := []struct {
		name    string
		room    string
		inviter string
		invitee string
		wantErr error
	}{
		{"unknown invitee", "lobby", "alice", "zoe", registry.ErrUserNotFound},
		{"unknown room", "attic", "alice", "bob", registry.ErrRoomNotFound},
		{"not the owner", "lobby", "bob", "carol", registry.ErrNotAuthorized},
		{"owner invites self", "lobby", "alice", "alice", registry.ErrAlreadyMember},
		{"valid invite", "lobby", "alice", "bob", nil},
		{"repeat invite", "lobby", "alice", "bob", registry.ErrAlreadyInvited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.rooms.Invite(tt.room, tt.inviter, tt.invitee)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoomsJoinRequiresInvitation(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob")
	require.NoError(t, f.rooms.Create("lobby", "alice"))

	_, err := f.rooms.Join("lobby", "bob")
	assert.ErrorIs(t, err, registry.ErrNotInvited)
	_, err = f.rooms.Join("attic", "bob")
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)

	require.NoError(t, f.rooms.Invite("lobby", "alice", "bob"))
	members, err := f.rooms.Join("lobby", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	_, err = f.rooms.Join("lobby", "bob")
	assert.ErrorIs(t, err, registry.ErrAlreadyMember)
}

func TestRoomsJoinConsumesInvitation(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")

	_, err := f.rooms.Leave("lobby", "bob")
	require.NoError(t, err)
	_, err = f.rooms.Join("lobby", "bob")
	assert.ErrorIs(t, err, registry.ErrNotInvited)
}

func TestRoomsJoinAnnouncesToExistingMembers(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob", "carol", "dave")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")
	f.join(t, "lobby", "alice", "carol")

	aliceJoins := f.peers["alice"].ofType(protocol.TypeJoinedRoom)
	require.Len(t, aliceJoins, 2)
	assert.Equal(t, "bob", aliceJoins[0].Get("username"))
	assert.Equal(t, "carol", aliceJoins[1].Get("username"))
	assert.Equal(t, "lobby", aliceJoins[1].Get("room"))

	bobJoins := f.peers["bob"].ofType(protocol.TypeJoinedRoom)
	require.Len(t, bobJoins, 1)
	assert.Equal(t, "carol", bobJoins[0].Get("username"))

	assert.Empty(t, f.peers["carol"].ofType(protocol.TypeJoinedRoom))
	assert.Empty(t, f.peers["dave"].messages())
}

func TestRoomsLeave(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")

	_, err := f.rooms.Leave("lobby", "carol")
	assert.ErrorIs(t, err, registry.ErrNotMember)
	_, err = f.rooms.Leave("attic", "carol")
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)

	destroyed, err := f.rooms.Leave("lobby", "bob")
	require.NoError(t, err)
	assert.False(t, destroyed)
	left := f.peers["alice"].ofType(protocol.TypeLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", left[0].Get("username"))

	destroyed, err = f.rooms.Leave("lobby", "alice")
	require.NoError(t, err)
	assert.True(t, destroyed)
	assert.Equal(t, 0, f.rooms.Len())

	_, err = f.rooms.Members("lobby")
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)
	assert.NoError(t, f.rooms.Create("lobby", "carol"))
}

func TestRoomsOwnershipPassesToEarliestMember(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")
	f.join(t, "lobby", "alice", "carol")

	_, err := f.rooms.Leave("lobby", "alice")
	require.NoError(t, err)

	owner, err := f.rooms.Owner("lobby")
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
	assert.ErrorIs(t, f.rooms.Invite("lobby", "carol", "alice"), registry.ErrNotAuthorized)
	assert.NoError(t, f.rooms.Invite("lobby", "bob", "alice"))
}

func TestRoomsLeaveAll(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.rooms.Create("zoo", "alice"))
	require.NoError(t, f.rooms.Create("attic", "alice"))
	require.NoError(t, f.rooms.Create("solo", "bob"))
	require.NoError(t, f.rooms.Create("pending", "carol"))
	f.join(t, "zoo", "alice", "bob")
	require.NoError(t, f.rooms.Invite("pending", "carol", "alice"))

	left := f.rooms.LeaveAll("alice")
	assert.Equal(t, []string{"attic", "zoo"}, left)

	_, err := f.rooms.Members("attic")
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)
	members, err := f.rooms.Members("zoo")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)

	bobLeft := f.peers["bob"].ofType(protocol.TypeLeftRoom)
	require.Len(t, bobLeft, 1)
	assert.Equal(t, "zoo", bobLeft[0].Get("room"))

	_, err = f.rooms.Join("pending", "alice")
	assert.ErrorIs(t, err, registry.ErrNotInvited)

	assert.Empty(t, f.rooms.LeaveAll("nobody"))
}

func TestRoomsInviteRacingDepartureLeavesNoInvitation(t *testing.T) {
	for i := 0; i < 500; i++ {
		f := newRoomFixture(t, "alice", "bob")
		require.NoError(t, f.rooms.Create("lobby", "alice"))

		var wg sync.WaitGroup
		var inviteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			inviteErr = f.rooms.Invite("lobby", "alice", "bob")
		}()
		go func() {
			defer wg.Done()
			f.users.Remove("bob")
			f.rooms.LeaveAll("bob")
		}()
		wg.Wait()

		if inviteErr != nil {
			require.ErrorIs(t, inviteErr, registry.ErrUserNotFound)
		}

		// A newcomer reusing the name must not inherit the invitation.
		require.NoError(t, f.users.Add("bob", protocol.StatusAvailable, &recordingPeer{}))
		_, err := f.rooms.Join("lobby", "bob")
		require.ErrorIs(t, err, registry.ErrNotInvited, "iteration %d", i)
	}
}

func TestRoomsBroadcast(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob", "carol", "dave")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")
	f.join(t, "lobby", "alice", "carol")

	msg := protocol.RoomTextFrom{Room: "lobby", From: "alice", Body: "hello"}.Message()
	n, err := f.rooms.Broadcast("lobby", msg, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Empty(t, f.peers["alice"].ofType(protocol.TypeRoomTextFrom))
	assert.Len(t, f.peers["bob"].ofType(protocol.TypeRoomTextFrom), 1)
	assert.Len(t, f.peers["carol"].ofType(protocol.TypeRoomTextFrom), 1)
	assert.Empty(t, f.peers["dave"].messages())

	n, err = f.rooms.Broadcast("lobby", msg, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.rooms.Broadcast("attic", msg, "")
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)
}

func TestRoomsBroadcastSkipsDepartedUser(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")

	// bob's connection is gone but the room has not been told yet.
	f.users.Remove("bob")

	n, err := f.rooms.Broadcast("lobby", protocol.NewMessage(protocol.TypeRoomTextFrom,
		"room", "lobby", "from", "alice", "body", "anyone?"), "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRoomsMemberEntriesCarryStatus(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob")
	require.NoError(t, f.rooms.Create("lobby", "alice"))
	f.join(t, "lobby", "alice", "bob")
	require.NoError(t, f.users.SetStatus("bob", protocol.StatusAway))

	entries, err := f.rooms.MemberEntries("lobby")
	require.NoError(t, err)
	assert.Equal(t, []protocol.UserEntry{
		{Username: "alice", Status: protocol.StatusAvailable},
		{Username: "bob", Status: protocol.StatusAway},
	}, entries)
}

func TestRoomsCheckMember(t *testing.T) {
	f := newRoomFixture(t, "alice", "bob")
	require.NoError(t, f.rooms.Create("lobby", "alice"))

	assert.NoError(t, f.rooms.CheckMember("lobby", "alice"))
	assert.ErrorIs(t, f.rooms.CheckMember("lobby", "bob"), registry.ErrNotMember)
	assert.ErrorIs(t, f.rooms.CheckMember("attic", "bob"), registry.ErrRoomNotFound)
}
