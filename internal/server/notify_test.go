package server

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/protocol"
)

func TestNotifyLogsDepartedRecipient(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	srv := New(DefaultConfig(), WithLogger(log))
	h := &handler{sess: identifiedSession(t, srv, "alice"), srv: srv}
	hook.Reset()

	h.notify("bob", protocol.Invitation{Room: "lobby", From: "alice"}.Message())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "bob", entry.Data["recipient"])
	assert.Equal(t, "INVITATION", entry.Data["type"])
	assert.Equal(t, "alice", entry.Data["username"])
}

func TestNotifyDeliversToPresentRecipient(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	srv := New(DefaultConfig(), WithLogger(log))
	h := &handler{sess: identifiedSession(t, srv, "alice"), srv: srv}

	bob := &inbox{}
	require.NoError(t, srv.users.Add("bob", protocol.StatusAvailable, bob))
	hook.Reset()

	h.notify("bob", protocol.Invitation{Room: "lobby", From: "alice"}.Message())

	assert.Equal(t, 1, bob.count(protocol.TypeInvitation))
	assert.Empty(t, hook.AllEntries())
}
