package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/Tyrowin/circe/internal/protocol"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type wsConn struct {
	conn *websocket.Conn
	opts options

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	// readFailed is set once the socket returned a read error; gorilla
	// connections must not be read again after that.
	readFailed bool
}

func newWSConn(conn *websocket.Conn, o options) *wsConn {
	c := &wsConn{conn: conn, opts: o, done: make(chan struct{})}
	conn.SetReadLimit(int64(o.maxFrameSize) + 1)
	c.setupReadDeadline()
	go c.keepAlive()
	return c
}

// setupReadDeadline arms the read deadline and extends it on every pong.
func (c *wsConn) setupReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.opts.log.WithError(err).Debug("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	if c.readFailed {
		return nil, net.ErrClosed
	}
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readFailed = true
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrFrameTooLarge
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		data = bytes.TrimRight(data, "\r\n")
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(c.opts.deadline()); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(frame, []byte{protocol.Delimiter}))
}

// Close sends a close frame, best effort, then tears down the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if IsClosed(werr) {
			werr = nil
		}
		c.closeErr = multierr.Append(werr, c.conn.Close())
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// DialWebSocket connects to a chat server's WebSocket endpoint, e.g.
// ws://localhost:8080/ws.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (Conn, error) {
	o := buildOptions(opts)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header(o.header))
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newWSConn(conn, o), nil
}

type wsAddr string

func (a wsAddr) Network() string { return "websocket" }
func (a wsAddr) String() string  { return string(a) }

// WebSocketListener is an http.Handler that upgrades requests and hands the
// resulting connections to Accept. Mount it on a router and pass it to the
// same accept loop as a TCP listener.
type WebSocketListener struct {
	upgrader websocket.Upgrader
	opts     options
	conns    chan Conn
	done     chan struct{}
	once     sync.Once
}

// NewWebSocketListener creates a listener. checkOrigin may be nil to accept
// any origin.
func NewWebSocketListener(checkOrigin func(*http.Request) bool, opts ...Option) *WebSocketListener {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketListener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		opts:  buildOptions(opts),
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}
}

func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	select {
	case <-l.done:
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.opts.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("WebSocket upgrade failed")
		return
	}

	conn := newWSConn(ws, l.opts)
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *WebSocketListener) Accept() (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *WebSocketListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *WebSocketListener) Addr() net.Addr { return wsAddr("/ws") }
