// Package testhelpers provides common utilities and helper functions for
// testing the Circe server and client.
//
// It contains a frame-level test client that speaks the wire protocol over
// TCP or WebSocket and collects pushed messages in the background, plus HTTP
// helpers shared by the ops endpoint tests.
package testhelpers

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/transport"
)

// DefaultTimeout bounds every wait in this package.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by WebSocket test clients.
const TestOrigin = "http://localhost:8080"

// Client is a protocol-level test client. A background goroutine decodes
// every inbound frame into Inbox until the connection ends.
type Client struct {
	conn  transport.Conn
	inbox chan protocol.Message
	done  chan struct{}

	mu      sync.Mutex
	readErr error
}

// NewClient wraps an established connection.
func NewClient(t *testing.T, conn transport.Conn) *Client {
	t.Helper()
	c := &Client{
		conn:  conn,
		inbox: make(chan protocol.Message, 1024),
		done:  make(chan struct{}),
	}
	go c.readLoop(t)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// DialTCP connects a test client to a TCP server address.
func DialTCP(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	conn, err := transport.Dial(ctx, addr)
	require.NoError(t, err, "dial %s", addr)
	return NewClient(t, conn)
}

// DialWebSocket connects a test client to a ws:// URL with TestOrigin.
func DialWebSocket(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	conn, err := transport.DialWebSocket(ctx, url,
		transport.WithHeader(http.Header{"Origin": {TestOrigin}}))
	require.NoError(t, err, "dial %s", url)
	return NewClient(t, conn)
}

func (c *Client) readLoop(t *testing.T) {
	defer close(c.done)
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			t.Errorf("server sent undecodable frame %q: %v", frame, err)
			continue
		}
		c.inbox <- msg
	}
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Done is closed when the connection's read side has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadErr returns the error that ended the read loop, if any.
func (c *Client) ReadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Send encodes and writes one message.
func (c *Client) Send(t *testing.T, msg protocol.Message) {
	t.Helper()
	frame, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteFrame(frame))
}

// SendRaw writes bytes as one frame, unvalidated.
func (c *Client) SendRaw(t *testing.T, frame string) {
	t.Helper()
	require.NoError(t, c.conn.WriteFrame([]byte(frame)))
}

// Next returns the next inbound message.
func (c *Client) Next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-c.inbox:
		return msg
	case <-time.After(DefaultTimeout):
		t.Fatalf("timed out waiting for a message (read error: %v)", c.ReadErr())
		return protocol.Message{}
	}
}

// Expect requires the next inbound message to be of type want.
func (c *Client) Expect(t *testing.T, want protocol.MessageType) protocol.Message {
	t.Helper()
	msg := c.Next(t)
	require.Equal(t, want, msg.Type, "unexpected message %+v", msg)
	return msg
}

// WaitFor discards messages until one of type want arrives.
func (c *Client) WaitFor(t *testing.T, want protocol.MessageType) protocol.Message {
	t.Helper()
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case msg := <-c.inbox:
			if msg.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return protocol.Message{}
		}
	}
}

// ExpectResponse requires the next message to be a CLIENT_RESPONSE of the
// given kind and returns it parsed.
func (c *Client) ExpectResponse(t *testing.T, kind protocol.ResponseKind) protocol.Response {
	t.Helper()
	msg := c.Expect(t, protocol.TypeClientResponse)
	ev, err := protocol.ParseEvent(msg)
	require.NoError(t, err)
	resp := ev.(protocol.Response)
	require.Equal(t, kind, resp.Kind, "unexpected response %+v", resp)
	return resp
}

// ExpectSuccess requires the next message to be a successful response of
// the given kind.
func (c *Client) ExpectSuccess(t *testing.T, kind protocol.ResponseKind) protocol.Response {
	t.Helper()
	resp := c.ExpectResponse(t, kind)
	require.True(t, resp.Success, "expected %s to succeed, got %+v", kind, resp)
	return resp
}

// ExpectFailure requires the next message to be a failed response of the
// given kind carrying the error code of want.
func (c *Client) ExpectFailure(t *testing.T, kind protocol.ResponseKind, want error) protocol.Response {
	t.Helper()
	resp := c.ExpectResponse(t, kind)
	require.False(t, resp.Success, "expected %s to fail, got %+v", kind, resp)
	assert.Equal(t, protocol.Code(want), resp.Detail)
	return resp
}

// ExpectSilence requires that nothing arrives for d.
func (c *Client) ExpectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-c.inbox:
		t.Fatalf("expected no message, got %+v", msg)
	case <-time.After(d):
	}
}

// ExpectClosed requires the server to close the connection.
func (c *Client) ExpectClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(DefaultTimeout):
		t.Fatal("timed out waiting for the server to close the connection")
	}
}

// Identify logs in as username and requires success.
func (c *Client) Identify(t *testing.T, username string) {
	t.Helper()
	c.Send(t, protocol.Identify{Username: username}.Message())
	c.ExpectSuccess(t, protocol.KindIdentify)
}

// Eventually polls cond until it holds or the default timeout expires.
func Eventually(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, DefaultTimeout, 10*time.Millisecond, msgAndArgs...)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "Failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "Failed to make request")
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "Expected status code %d, got %d", expected, resp.StatusCode)
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	assert.Equal(t, expected, resp.Header.Get("Content-Type"))
}
