// Package transport moves protocol frames over byte streams. It hides the
// difference between raw TCP connections, where frames are delimited by a
// newline, and WebSocket connections, where each text message is one frame.
package transport

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultMaxFrameSize bounds a single inbound frame when no limit is set.
const DefaultMaxFrameSize = 4096

// ErrFrameTooLarge is returned by ReadFrame for a frame over the size limit.
// On stream connections the oversized frame is skipped and the connection
// stays usable; on WebSocket connections it is fatal.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// Conn is a bidirectional frame stream. ReadFrame must only be called from a
// single goroutine; WriteFrame and Close are safe for concurrent use.
type Conn interface {
	// ReadFrame blocks for the next frame, returned without its delimiter.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one encoded frame.
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

// Listener yields accepted connections. After Close, Accept returns an error
// matching net.ErrClosed.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Option configures connections created by this package.
type Option func(*options)

type options struct {
	maxFrameSize int
	writeTimeout time.Duration
	log          logrus.FieldLogger
	header       map[string][]string
}

// WithMaxFrameSize limits inbound frames to n bytes, excluding the delimiter.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// WithWriteTimeout sets a per-frame write deadline. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithLogger sets the logger for connection-level diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithHeader adds request headers to a WebSocket handshake, typically Origin.
func WithHeader(h map[string][]string) Option {
	return func(o *options) { o.header = h }
}

func buildOptions(opts []Option) options {
	o := options{
		maxFrameSize: DefaultMaxFrameSize,
		writeTimeout: 10 * time.Second,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) deadline() time.Time {
	if o.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(o.writeTimeout)
}

// IsClosed reports whether err is the ordinary result of a peer or local
// close rather than a fault worth reporting.
func IsClosed(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
