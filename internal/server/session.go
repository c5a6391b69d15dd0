// Package server manages individual chat sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/transport"
)

// Session is one client connection. A reader goroutine decodes and dispatches
// frames; a writer goroutine drains the bounded outbound queue. Session
// implements registry.Peer, so the registries deliver to it through Send.
type Session struct {
	id      string
	conn    transport.Conn
	srv     *Server
	log     logrus.FieldLogger
	send    chan []byte
	limiter *rateLimiter

	mu       sync.Mutex
	closed   bool
	username string

	teardownOnce sync.Once
}

func newSession(srv *Server, conn transport.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		conn: conn,
		srv:  srv,
		log: srv.log.WithFields(logrus.Fields{
			"session": id,
			"remote":  conn.RemoteAddr(),
		}),
		send:    make(chan []byte, srv.cfg.SendQueueSize),
		limiter: newRateLimiter(srv.cfg.RateLimit),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Username returns the identified username, or "" before IDENTIFY succeeds.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

func (s *Session) logger() logrus.FieldLogger {
	if name := s.Username(); name != "" {
		return s.log.WithField("username", name)
	}
	return s.log
}

// Send encodes msg and enqueues it without blocking. A full queue means the
// peer is not keeping up: the connection is closed and ErrSendQueueFull is
// returned.
func (s *Session) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		s.mu.Unlock()
		return nil
	default:
	}
	s.mu.Unlock()

	s.logger().WithField("queue", cap(s.send)).Warn("Send queue full; closing slow session")
	_ = s.conn.Close()
	return ErrSendQueueFull
}

func (s *Session) reply(e protocol.Event) {
	if err := s.Send(e.Message()); err != nil {
		s.logger().WithError(err).WithField("type", e.Type().String()).Debug("Could not queue reply")
	}
}

// Close closes the connection. The reader notices and runs the teardown.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) readPump() {
	defer s.teardown()

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrFrameTooLarge) {
				s.rejectFrame(err)
				continue
			}
			s.handleReadError(err)
			return
		}

		if !s.checkRateLimit() {
			continue
		}
		if !s.processFrame(frame) {
			return
		}
	}
}

func (s *Session) handleReadError(err error) {
	if transport.IsClosed(err) {
		s.logger().WithError(err).Debug("Connection closed")
		return
	}
	s.logger().WithError(err).Warn("Read error")
}

// checkRateLimit reports whether the next frame may be processed.
func (s *Session) checkRateLimit() bool {
	if s.limiter.allow() {
		return true
	}
	s.srv.metrics.rateLimited.Inc()
	s.logger().WithFields(logrus.Fields{
		"burst":    s.srv.cfg.RateLimit.Burst,
		"interval": s.srv.cfg.RateLimit.RefillInterval,
	}).Warn("Rate limit exceeded; discarding frame")
	return false
}

// processFrame decodes and dispatches one frame and reports whether the
// session should keep reading.
func (s *Session) processFrame(frame []byte) bool {
	msg, err := protocol.Decode(frame)
	if err != nil {
		s.rejectFrame(err)
		return true
	}
	s.srv.metrics.frames.WithLabelValues(msg.Type.String()).Inc()
	return s.dispatch(protocol.ParseRequest(msg))
}

// rejectFrame answers a frame that could not be decoded. The connection stays
// open.
func (s *Session) rejectFrame(err error) {
	s.logger().WithError(err).Debug("Rejected malformed frame")
	s.srv.metrics.handlerError(err)
	s.reply(protocol.Failed(protocol.KindInvalid, protocol.ErrMalformedMessage, ""))
}

func (s *Session) writePump() {
	defer func() {
		if err := s.conn.Close(); !transport.IsClosed(err) {
			s.logger().WithError(err).Warn("Error closing connection in writePump")
		}
	}()

	for frame := range s.send {
		if err := s.conn.WriteFrame(frame); err != nil {
			if transport.IsClosed(err) {
				s.logger().WithError(err).Debug("Write to closed connection")
			} else {
				s.logger().WithError(err).Warn("Write error")
			}
			return
		}
	}
}

// teardown unregisters the user, leaves every room, announces the departure,
// and stops the writer once the queue is flushed. It runs at most once
// however many times it is called.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		if name := s.Username(); name != "" {
			if _, removed := s.srv.users.Remove(name); removed {
				rooms := s.srv.rooms.LeaveAll(name)
				s.srv.users.BroadcastExcept(name, protocol.Disconnected{Username: name}.Message())
				s.logger().WithField("rooms", rooms).Info("User disconnected")
			}
		}

		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()

		s.srv.forget(s)
	})
}
