// Package registry holds the server's shared state: who is online and which
// rooms exist. Both registries are safe for concurrent use and never expose
// their containers; every read returns a snapshot and every delivery happens
// with the registry lock released.
package registry

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/circe/internal/protocol"
)

// Peer is the write side of a user's connection. The registry holds it
// without owning it. Send must not block.
type Peer interface {
	Send(protocol.Message) error
}

// Option configures a registry.
type Option func(*options)

type options struct {
	log       logrus.FieldLogger
	onFailure func(recipient string, err error)
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithDeliveryFailureHook registers a callback invoked once per failed
// delivery, after it has been logged.
func WithDeliveryFailureHook(fn func(recipient string, err error)) Option {
	return func(o *options) { o.onFailure = fn }
}

func buildOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// deliver sends msg to one recipient. A failure is logged and reported to
// the hook but never returned to the caller's other recipients.
func (o options) deliver(recipient string, peer Peer, msg protocol.Message) error {
	err := peer.Send(msg)
	if err == nil {
		return nil
	}
	o.log.WithFields(logrus.Fields{
		"recipient": recipient,
		"type":      msg.Type.String(),
	}).WithError(err).Warn("Dropping message for unreachable recipient")
	if o.onFailure != nil {
		o.onFailure(recipient, err)
	}
	return err
}

// UserInfo is a registered user.
type UserInfo struct {
	Username string
	Status   protocol.Status
	Peer     Peer
}

type userEntry struct {
	info UserInfo
	seq  uint64
}

type namedPeer struct {
	name string
	peer Peer
}

// Users maps usernames to their status and connection.
type Users struct {
	mu     sync.RWMutex
	byName map[string]*userEntry
	seq    uint64
	opts   options
}

// NewUsers creates an empty user registry.
func NewUsers(opts ...Option) *Users {
	return &Users{
		byName: make(map[string]*userEntry),
		opts:   buildOptions(opts),
	}
}

// Add registers a user. Of any number of concurrent Adds for the same name
// exactly one succeeds; the rest get ErrDuplicateUser.
func (u *Users) Add(username string, status protocol.Status, peer Peer) error {
	name, err := NormalizeUsername(username)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.byName[name]; exists {
		return ErrDuplicateUser
	}
	u.seq++
	u.byName[name] = &userEntry{
		info: UserInfo{Username: name, Status: status, Peer: peer},
		seq:  u.seq,
	}
	return nil
}

// Remove unregisters a user and reports whether it was present. Removing an
// absent user is a no-op.
func (u *Users) Remove(username string) (UserInfo, bool) {
	name := canonical(username)

	u.mu.Lock()
	defer u.mu.Unlock()

	entry, ok := u.byName[name]
	if !ok {
		return UserInfo{}, false
	}
	delete(u.byName, name)
	return entry.info, true
}

// Find looks up a user.
func (u *Users) Find(username string) (UserInfo, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	entry, ok := u.byName[canonical(username)]
	if !ok {
		return UserInfo{}, ErrUserNotFound
	}
	return entry.info, nil
}

// SetStatus updates a user's presence.
func (u *Users) SetStatus(username string, status protocol.Status) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	entry, ok := u.byName[canonical(username)]
	if !ok {
		return ErrUserNotFound
	}
	entry.info.Status = status
	return nil
}

// List returns every user with its status in registration order.
func (u *Users) List() []protocol.UserEntry {
	u.mu.RLock()
	entries := make([]*userEntry, 0, len(u.byName))
	for _, e := range u.byName {
		entries = append(entries, e)
	}
	list := make([]protocol.UserEntry, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		list = append(list, protocol.UserEntry{Username: e.info.Username, Status: e.info.Status})
	}
	u.mu.RUnlock()
	return list
}

// Len returns the number of registered users.
func (u *Users) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.byName)
}

// SendTo delivers msg to one user. It returns ErrUserNotFound for an unknown
// user, or the delivery error after logging it.
func (u *Users) SendTo(username string, msg protocol.Message) error {
	info, err := u.Find(username)
	if err != nil {
		return err
	}
	return u.opts.deliver(info.Username, info.Peer, msg)
}

// BroadcastExcept sends msg to every registered user except excluded and
// returns how many deliveries succeeded. Failed recipients are logged and
// skipped.
func (u *Users) BroadcastExcept(excluded string, msg protocol.Message) int {
	excluded = canonical(excluded)

	u.mu.RLock()
	entries := make([]*userEntry, 0, len(u.byName))
	for name, e := range u.byName {
		if name != excluded {
			entries = append(entries, e)
		}
	}
	targets := make([]namedPeer, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		targets = append(targets, namedPeer{name: e.info.Username, peer: e.info.Peer})
	}
	u.mu.RUnlock()

	return u.opts.deliverAll(targets, msg)
}

// peersFor resolves names to peers, silently skipping names that are no
// longer registered.
func (u *Users) peersFor(names []string) []namedPeer {
	u.mu.RLock()
	defer u.mu.RUnlock()

	targets := make([]namedPeer, 0, len(names))
	for _, name := range names {
		if e, ok := u.byName[name]; ok {
			targets = append(targets, namedPeer{name: name, peer: e.info.Peer})
		}
	}
	return targets
}

// status returns a user's presence, or StatusOffline if unknown.
func (u *Users) status(name string) protocol.Status {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if e, ok := u.byName[name]; ok {
		return e.info.Status
	}
	return protocol.StatusOffline
}

func (o options) deliverAll(targets []namedPeer, msg protocol.Message) int {
	delivered := 0
	for _, t := range targets {
		if o.deliver(t.name, t.peer, msg) == nil {
			delivered++
		}
	}
	return delivered
}
