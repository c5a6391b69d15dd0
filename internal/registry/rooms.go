package registry

import (
	"sort"
	"sync"

	"github.com/Tyrowin/circe/internal/protocol"
)

type room struct {
	name    string
	owner   string
	members []string
	invited map[string]struct{}
}

func (r *room) memberIndex(name string) int {
	for i, m := range r.members {
		if m == name {
			return i
		}
	}
	return -1
}

func (r *room) others(name string) []string {
	out := make([]string, 0, len(r.members))
	for _, m := range r.members {
		if m != name {
			out = append(out, m)
		}
	}
	return out
}

// Rooms maps room names to their owner, members and pending invitations.
// Member peers are resolved through the user registry at delivery time.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*room
	users *Users
	opts  options
}

// NewRooms creates an empty room registry backed by users.
func NewRooms(users *Users, opts ...Option) *Rooms {
	return &Rooms{
		rooms: make(map[string]*room),
		users: users,
		opts:  buildOptions(opts),
	}
}

// Create adds a room whose only member is its owner.
func (r *Rooms) Create(roomName, owner string) error {
	name, err := NormalizeRoomName(roomName)
	if err != nil {
		return err
	}
	owner = canonical(owner)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; exists {
		return ErrDuplicateRoom
	}
	r.rooms[name] = &room{
		name:    name,
		owner:   owner,
		members: []string{owner},
		invited: make(map[string]struct{}),
	}
	return nil
}

// Invite records that invitee may join. Only the owner may invite, and the
// invitee must be a registered user.
func (r *Rooms) Invite(roomName, inviter, invitee string) error {
	name, inviter, invitee := canonical(roomName), canonical(inviter), canonical(invitee)

	// The lookup happens under r.mu so a departing invitee's LeaveAll, which
	// follows its removal from users, always sees the recorded invitation.
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.users.Find(invitee); err != nil {
		return err
	}
	rm, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if rm.owner != inviter {
		return ErrNotAuthorized
	}
	if rm.memberIndex(invitee) >= 0 {
		return ErrAlreadyMember
	}
	if _, ok := rm.invited[invitee]; ok {
		return ErrAlreadyInvited
	}
	rm.invited[invitee] = struct{}{}
	return nil
}

// Join admits an invited user, consuming the invitation, and announces
// JOINED_ROOM to the members already present. It returns the member list
// after the join.
func (r *Rooms) Join(roomName, username string) ([]string, error) {
	name, user := canonical(roomName), canonical(username)

	r.mu.Lock()
	rm, ok := r.rooms[name]
	if !ok {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if rm.memberIndex(user) >= 0 {
		r.mu.Unlock()
		return nil, ErrAlreadyMember
	}
	if _, invited := rm.invited[user]; !invited {
		r.mu.Unlock()
		return nil, ErrNotInvited
	}
	delete(rm.invited, user)
	existing := append([]string(nil), rm.members...)
	rm.members = append(rm.members, user)
	members := append([]string(nil), rm.members...)
	r.mu.Unlock()

	r.fanOut(existing, protocol.JoinedRoom{Room: name, Username: user}.Message())
	return members, nil
}

// Leave removes a member. The last member leaving destroys the room;
// otherwise the remaining members get LEFT_ROOM and, if the owner left,
// ownership passes to the earliest-joined member. It reports whether the
// room was destroyed.
func (r *Rooms) Leave(roomName, username string) (bool, error) {
	name, user := canonical(roomName), canonical(username)

	r.mu.Lock()
	rm, ok := r.rooms[name]
	if !ok {
		r.mu.Unlock()
		return false, ErrRoomNotFound
	}
	if rm.memberIndex(user) < 0 {
		r.mu.Unlock()
		return false, ErrNotMember
	}
	remaining := r.removeMemberLocked(rm, user)
	r.mu.Unlock()

	if len(remaining) == 0 {
		return true, nil
	}
	r.fanOut(remaining, protocol.LeftRoom{Room: name, Username: user}.Message())
	return false, nil
}

// LeaveAll removes username from every room it belongs to and drops its
// pending invitations. It returns the rooms it was a member of, sorted.
func (r *Rooms) LeaveAll(username string) []string {
	user := canonical(username)

	type departure struct {
		room      string
		remaining []string
	}

	r.mu.Lock()
	var departures []departure
	for name, rm := range r.rooms {
		delete(rm.invited, user)
		if rm.memberIndex(user) < 0 {
			continue
		}
		departures = append(departures, departure{room: name, remaining: r.removeMemberLocked(rm, user)})
	}
	r.mu.Unlock()

	sort.Slice(departures, func(i, j int) bool { return departures[i].room < departures[j].room })
	left := make([]string, 0, len(departures))
	for _, d := range departures {
		left = append(left, d.room)
		if len(d.remaining) > 0 {
			r.fanOut(d.remaining, protocol.LeftRoom{Room: d.room, Username: user}.Message())
		}
	}
	return left
}

// removeMemberLocked drops user from rm, deleting the room when it empties,
// and returns the remaining members. r.mu must be held.
func (r *Rooms) removeMemberLocked(rm *room, user string) []string {
	rm.members = rm.others(user)
	if len(rm.members) == 0 {
		delete(r.rooms, rm.name)
		return nil
	}
	if rm.owner == user {
		rm.owner = rm.members[0]
	}
	return append([]string(nil), rm.members...)
}

// Broadcast sends msg to every member of roomName except exclude, which may
// be empty. It returns the number of successful deliveries.
func (r *Rooms) Broadcast(roomName string, msg protocol.Message, exclude string) (int, error) {
	name, exclude := canonical(roomName), canonical(exclude)

	r.mu.RLock()
	rm, ok := r.rooms[name]
	if !ok {
		r.mu.RUnlock()
		return 0, ErrRoomNotFound
	}
	targets := rm.others(exclude)
	r.mu.RUnlock()

	return r.fanOut(targets, msg), nil
}

func (r *Rooms) fanOut(names []string, msg protocol.Message) int {
	return r.opts.deliverAll(r.users.peersFor(names), msg)
}

// Members returns a room's members in join order.
func (r *Rooms) Members(roomName string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[canonical(roomName)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return append([]string(nil), rm.members...), nil
}

// MemberEntries returns a room's members with their current status.
func (r *Rooms) MemberEntries(roomName string) ([]protocol.UserEntry, error) {
	members, err := r.Members(roomName)
	if err != nil {
		return nil, err
	}
	entries := make([]protocol.UserEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, protocol.UserEntry{Username: m, Status: r.users.status(m)})
	}
	return entries, nil
}

// CheckMember returns nil if username belongs to roomName, ErrRoomNotFound
// or ErrNotMember otherwise.
func (r *Rooms) CheckMember(roomName, username string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[canonical(roomName)]
	if !ok {
		return ErrRoomNotFound
	}
	if rm.memberIndex(canonical(username)) < 0 {
		return ErrNotMember
	}
	return nil
}

// Owner returns the user holding invite rights for roomName.
func (r *Rooms) Owner(roomName string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[canonical(roomName)]
	if !ok {
		return "", ErrRoomNotFound
	}
	return rm.owner, nil
}

// Len returns the number of live rooms.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
