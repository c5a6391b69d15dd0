package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/Tyrowin/circe/internal/protocol"
)

// Address validation errors.
var (
	ErrInvalidIP   = errors.New("transport: invalid IP address")
	ErrInvalidPort = errors.New("transport: port must be between 1 and 65535")
)

// ValidateIP checks that ip is a literal IPv4 or IPv6 address.
func ValidateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return nil
}

// ValidatePort checks that port is a usable TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}

type streamConn struct {
	conn net.Conn
	r    *bufio.Reader
	opts options

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn frames an established byte stream with newline delimiters.
func NewStreamConn(conn net.Conn, opts ...Option) Conn {
	o := buildOptions(opts)
	return &streamConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 4096),
		opts: o,
	}
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

// readLine returns the bytes up to the next delimiter. A line over the size
// limit is consumed in full and reported as ErrFrameTooLarge.
func (c *streamConn) readLine() ([]byte, error) {
	var (
		buf      []byte
		n        int
		tooLarge bool
	)
	for {
		chunk, err := c.r.ReadSlice(protocol.Delimiter)
		n += len(chunk)
		if !tooLarge {
			if n > c.opts.maxFrameSize+1 {
				tooLarge = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLarge {
				return nil, ErrFrameTooLarge
			}
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

func (c *streamConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(c.opts.deadline()); err != nil {
		return err
	}
	if len(frame) == 0 || frame[len(frame)-1] != protocol.Delimiter {
		frame = append(frame[:len(frame):len(frame)], protocol.Delimiter)
	}
	_, err := c.conn.Write(frame)
	return err
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *streamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

type streamListener struct {
	ln   net.Listener
	opts []Option
}

// Listen opens a TCP listener on ip:port. Port 0 picks an ephemeral port.
func Listen(ip string, port int, opts ...Option) (Listener, error) {
	if err := ValidateIP(ip); err != nil {
		return nil, err
	}
	if port != 0 {
		if err := ValidatePort(port); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listen on %s:%d: %w", ip, port, err)
	}
	return &streamListener{ln: ln, opts: opts}, nil
}

func (l *streamListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn, l.opts...), nil
}

func (l *streamListener) Close() error { return l.ln.Close() }

func (l *streamListener) Addr() net.Addr { return l.ln.Addr() }

// Dial connects to a TCP chat server at addr (host:port).
func Dial(ctx context.Context, addr string, opts ...Option) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStreamConn(conn, opts...), nil
}
