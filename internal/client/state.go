// Package client implements the Circe chat client: a local mirror of the
// server state it has been told about, the handlers that keep the mirror in
// sync with server pushes, the command shell, and the terminal front ends.
package client

import (
	"slices"
	"sync"

	"github.com/Tyrowin/circe/internal/protocol"
)

// State is the client's local view. The read loop writes it while the input
// loop reads it, so every access goes through the mutex.
type State struct {
	mu sync.RWMutex

	loggedIn bool
	username string
	status   protocol.Status

	users   []protocol.UserEntry
	rooms   map[string][]string
	invites map[string]string

	leaving bool
}

// NewState returns the state of a client that has not logged in.
func NewState() *State {
	return &State{
		rooms:   make(map[string][]string),
		invites: make(map[string]string),
	}
}

// Snapshot is a copy of State safe to read without locking.
type Snapshot struct {
	LoggedIn bool
	Username string
	Status   protocol.Status
	Users    []protocol.UserEntry
	Rooms    map[string][]string
	Invites  map[string]string
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make(map[string][]string, len(s.rooms))
	for name, members := range s.rooms {
		rooms[name] = slices.Clone(members)
	}
	invites := make(map[string]string, len(s.invites))
	for room, from := range s.invites {
		invites[room] = from
	}
	return Snapshot{
		LoggedIn: s.loggedIn,
		Username: s.username,
		Status:   s.status,
		Users:    slices.Clone(s.users),
		Rooms:    rooms,
		Invites:  invites,
	}
}

// LoggedIn reports whether IDENTIFY has succeeded.
func (s *State) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Username returns the identified name, or "".
func (s *State) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// InRoom reports whether the client has joined room.
func (s *State) InRoom(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Leaving reports whether the user asked to log out, so a closed connection
// is expected.
func (s *State) Leaving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaving
}

func (s *State) setLeaving() {
	s.mu.Lock()
	s.leaving = true
	s.mu.Unlock()
}

func (s *State) login(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = true
	s.username = username
	s.status = protocol.StatusAvailable
	s.upsertUserLocked(username, protocol.StatusAvailable)
}

func (s *State) logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.username = ""
	s.status = protocol.StatusOffline
	s.users = nil
	clear(s.rooms)
	clear(s.invites)
}

func (s *State) setStatus(username string, status protocol.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username == s.username {
		s.status = status
	}
	s.upsertUserLocked(username, status)
}

func (s *State) setUsers(users []protocol.UserEntry) {
	s.mu.Lock()
	s.users = slices.Clone(users)
	s.mu.Unlock()
}

func (s *State) addUser(username string) {
	s.mu.Lock()
	s.upsertUserLocked(username, protocol.StatusAvailable)
	s.mu.Unlock()
}

// removeUser forgets a departed user everywhere.
func (s *State) removeUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = slices.DeleteFunc(s.users, func(e protocol.UserEntry) bool { return e.Username == username })
	for room, members := range s.rooms {
		s.rooms[room] = slices.DeleteFunc(members, func(m string) bool { return m == username })
	}
	for room, from := range s.invites {
		if from == username {
			delete(s.invites, room)
		}
	}
}

func (s *State) upsertUserLocked(username string, status protocol.Status) {
	for i := range s.users {
		if s.users[i].Username == username {
			s.users[i].Status = status
			return
		}
	}
	s.users = append(s.users, protocol.UserEntry{Username: username, Status: status})
}

func (s *State) invited(room, from string) {
	s.mu.Lock()
	s.invites[room] = from
	s.mu.Unlock()
}

// joinRoom records membership. members may be nil when the list is not yet
// known.
func (s *State) joinRoom(room string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invites, room)
	if members == nil {
		members = s.rooms[room]
	}
	s.rooms[room] = slices.Clone(members)
}

func (s *State) addMember(room, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[room]
	if !ok || slices.Contains(members, username) {
		return
	}
	s.rooms[room] = append(members, username)
}

func (s *State) removeMember(room, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.rooms[room]; ok {
		s.rooms[room] = slices.DeleteFunc(members, func(m string) bool { return m == username })
	}
}

func (s *State) leaveRoom(room string) {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}
