package client

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/transport"
)

// Client is one connection to a Circe server with its local state. The read
// loop applies server pushes through the Mirror while the input loop feeds
// the Shell; both share the connection and the state.
type Client struct {
	conn   transport.Conn
	log    logrus.FieldLogger
	out    io.Writer
	state  *State
	mirror *Mirror
	shell  *Shell
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// WithStateChange registers fn to run after every server event, e.g. to
// redraw a UI.
func WithStateChange(fn func()) Option {
	return func(c *Client) { c.mirror.onChange = fn }
}

// New returns a client for conn printing to out.
func New(conn transport.Conn, out io.Writer, opts ...Option) *Client {
	out = &syncWriter{w: out}
	state := NewState()
	c := &Client{
		conn:  conn,
		log:   logrus.StandardLogger(),
		out:   out,
		state: state,
	}
	c.mirror = NewMirror(state, out, nil)
	c.shell = NewShell(state, c, out)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the local mirror of the server state.
func (c *Client) State() *State { return c.state }

// Send encodes msg and writes it to the server.
func (c *Client) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteFrame(frame)
}

// Execute runs one line of user input.
func (c *Client) Execute(line string) error {
	return c.shell.Execute(line)
}

// Close closes the connection, which ends the read loop.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ReadLoop applies server pushes until the connection ends. An end the user
// did not ask for prints "connection lost" and is returned as an error.
func (c *Client) ReadLoop() error {
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			if c.state.Leaving() {
				return nil
			}
			_, _ = io.WriteString(c.out, "connection lost\n")
			if transport.IsClosed(err) {
				return ErrConnectionLost
			}
			return errors.Join(ErrConnectionLost, err)
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			c.log.WithError(err).Warn("Ignoring undecodable frame from server")
			continue
		}
		ev, err := protocol.ParseEvent(msg)
		if err != nil {
			c.log.WithError(err).WithField("type", msg.Type.String()).Warn("Ignoring unexpected message from server")
			continue
		}
		c.mirror.Handle(ev)
	}
}

// ErrConnectionLost reports that the server went away unexpectedly.
var ErrConnectionLost = errors.New("connection lost")

// Run reads commands from in until \quit, end of input, or the end of the
// connection. It returns nil on a requested exit.
func (c *Client) Run(in io.Reader) error {
	readDone := make(chan error, 1)
	go func() { readDone <- c.ReadLoop() }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case err := <-readDone:
			return err
		case line, ok := <-lines:
			if !ok {
				line = `\quit`
			}
			err := c.Execute(line)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrQuit) {
				return c.finish(readDone, c.state.Leaving())
			}
			c.log.WithError(err).Error("Send failed")
			_ = c.Close()
			return <-readDone
		}
	}
}

// quitTimeout bounds the wait for the server to acknowledge DISCONNECT.
const quitTimeout = 2 * time.Second

// finish ends the session. When a DISCONNECT is in flight it first gives the
// server a moment to acknowledge and close.
func (c *Client) finish(readDone <-chan error, disconnecting bool) error {
	c.state.setLeaving()
	if disconnecting {
		select {
		case err := <-readDone:
			return err
		case <-time.After(quitTimeout):
		}
	}
	_ = c.Close()
	<-readDone
	return nil
}

// syncWriter serializes writes from the read and input loops.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
