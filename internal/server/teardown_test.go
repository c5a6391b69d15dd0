package server

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/logging"
	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/transport"
)

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (p *inbox) Send(msg protocol.Message) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	return nil
}

func (p *inbox) count(t protocol.MessageType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

// identifiedSession builds a session over one end of a pipe and registers it
// as username, without starting its pumps.
func identifiedSession(t *testing.T, srv *Server, username string) *Session {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { _ = remote.Close() })

	sess := newSession(srv, transport.NewStreamConn(local))
	srv.mu.Lock()
	srv.sessions[sess] = struct{}{}
	srv.mu.Unlock()

	require.NoError(t, srv.users.Add(username, protocol.StatusAvailable, sess))
	sess.setUsername(username)
	return sess
}

func TestTeardownRunsOnce(t *testing.T) {
	srv := New(DefaultConfig(), WithLogger(logging.Discard()))
	sess := identifiedSession(t, srv, "alice")

	bob := &inbox{}
	require.NoError(t, srv.users.Add("bob", protocol.StatusAvailable, bob))
	require.NoError(t, srv.rooms.Create("r1", "alice"))
	require.NoError(t, srv.rooms.Invite("r1", "alice", "bob"))
	_, err := srv.rooms.Join("r1", "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.teardown()
		}()
	}
	wg.Wait()
	sess.teardown()

	assert.Equal(t, 1, bob.count(protocol.TypeDisconnected))
	assert.Equal(t, 1, bob.count(protocol.TypeLeftRoom))
	assert.Equal(t, 1, srv.users.Len())
	assert.Equal(t, 0, srv.SessionCount())

	members, err := srv.rooms.Members("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)

	assert.ErrorIs(t, sess.Send(protocol.NewUser{Username: "x"}.Message()), ErrSessionClosed)
}

func TestSendQueueFullClosesSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendQueueSize = 2
	srv := New(cfg, WithLogger(logging.Discard()))
	sess := identifiedSession(t, srv, "alice")

	msg := protocol.NewUser{Username: "bob"}.Message()
	require.NoError(t, sess.Send(msg))
	require.NoError(t, sess.Send(msg))
	assert.ErrorIs(t, sess.Send(msg), ErrSendQueueFull)

	_, err := sess.conn.ReadFrame()
	assert.True(t, transport.IsClosed(err), "connection closed after overflow, got %v", err)
}
