package registry_test

import (
	"errors"
	"sync"

	"github.com/Tyrowin/circe/internal/protocol"
)

var errPeerGone = errors.New("peer gone")

// recordingPeer collects every message sent to it. A non-nil err makes Send
// fail instead.
type recordingPeer struct {
	mu   sync.Mutex
	msgs []protocol.Message
	err  error
}

func (p *recordingPeer) Send(m protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *recordingPeer) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message(nil), p.msgs...)
}

func (p *recordingPeer) ofType(t protocol.MessageType) []protocol.Message {
	var out []protocol.Message
	for _, m := range p.messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
