// Package server coordinates session registration, the shared registries,
// and connection cleanup for the Circe chat system via the Server type.
package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/Tyrowin/circe/internal/registry"
	"github.com/Tyrowin/circe/internal/transport"
)

// Server owns the user and room registries and every live session. It accepts
// connections from any number of listeners; TCP and WebSocket clients share
// the same registries.
type Server struct {
	cfg      Config
	log      logrus.FieldLogger
	users    *registry.Users
	rooms    *registry.Rooms
	metrics  *metrics
	registry *prometheus.Registry
	origins  *originPolicy
	ws       *transport.WebSocketListener

	mu        sync.Mutex
	sessions  map[*Session]struct{}
	listeners map[transport.Listener]struct{}
	closing   bool
	wg        conc.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default is logrus.StandardLogger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetricsRegistry registers the server's collectors on reg instead of a
// fresh private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// New creates a server with empty registries. cfg is sanitized first.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg.Sanitize(),
		log:       logrus.StandardLogger(),
		sessions:  make(map[*Session]struct{}),
		listeners: make(map[transport.Listener]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	regOpts := []registry.Option{
		registry.WithLogger(s.log),
		registry.WithDeliveryFailureHook(func(string, error) {
			s.metrics.deliveryFailures.Inc()
		}),
	}
	s.users = registry.NewUsers(regOpts...)
	s.rooms = registry.NewRooms(s.users, regOpts...)
	s.metrics = newMetrics(s.registry, s.users, s.rooms)
	s.origins = newOriginPolicy(s.cfg.AllowedOrigins, s.log)
	s.ws = transport.NewWebSocketListener(s.origins.check,
		transport.WithMaxFrameSize(s.cfg.MaxMessageSize),
		transport.WithLogger(s.log),
	)
	return s
}

// Config returns the sanitized configuration.
func (s *Server) Config() Config { return s.cfg }

// Users returns the user registry.
func (s *Server) Users() *registry.Users { return s.users }

// Rooms returns the room registry.
func (s *Server) Rooms() *registry.Rooms { return s.rooms }

// WebSocketListener returns the listener fed by the /ws route. Pass it to
// Serve to accept WebSocket sessions.
func (s *Server) WebSocketListener() transport.Listener { return s.ws }

// Listen opens the configured TCP listener.
func (s *Server) Listen() (transport.Listener, error) {
	return transport.Listen(s.cfg.IP, s.cfg.Port,
		transport.WithMaxFrameSize(s.cfg.MaxMessageSize),
		transport.WithLogger(s.log),
	)
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Serve accepts connections from ln until ln fails or the server shuts down,
// running one session per connection. After Shutdown it returns
// ErrServerClosed; any other accept failure is returned as is.
func (s *Server) Serve(ln transport.Listener) error {
	if !s.trackListener(ln, true) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	s.log.WithField("addr", ln.Addr().String()).Info("Accepting connections")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			return err
		}
		s.startSession(conn)
	}
}

func (s *Server) trackListener(ln transport.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing {
			return false
		}
		s.listeners[ln] = struct{}{}
		return true
	}
	delete(s.listeners, ln)
	return true
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) startSession(conn transport.Conn) {
	sess := newSession(s, conn)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	count := len(s.sessions)
	s.metrics.sessions.Inc()
	s.wg.Go(sess.writePump)
	s.wg.Go(sess.readPump)
	s.mu.Unlock()

	sess.log.WithField("sessions", count).Info("Session opened")
}

// forget drops a finished session from the live set.
func (s *Server) forget(sess *Session) {
	s.mu.Lock()
	_, ok := s.sessions[sess]
	delete(s.sessions, sess)
	count := len(s.sessions)
	s.mu.Unlock()

	if ok {
		s.metrics.sessions.Dec()
		sess.log.WithField("sessions", count).Info("Session closed")
	}
}

// Shutdown stops every listener, closes every session, and waits for the
// session goroutines to finish or ctx to expire. Each session runs its
// normal teardown. Close failures are aggregated into the returned error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Initiating server shutdown...")

	s.mu.Lock()
	s.closing = true
	listeners := make([]transport.Listener, 0, len(s.listeners)+1)
	listeners = append(listeners, s.ws)
	for ln := range s.listeners {
		if ln != transport.Listener(s.ws) {
			listeners = append(listeners, ln)
		}
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var err error
	for _, ln := range listeners {
		if cerr := ln.Close(); !transport.IsClosed(cerr) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, sess := range sessions {
		if cerr := sess.Close(); !transport.IsClosed(cerr) {
			err = multierr.Append(err, cerr)
		}
	}
	s.log.WithField("sessions", len(sessions)).Info("Closed client connections")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Server shutdown completed successfully")
	case <-ctx.Done():
		s.log.Warn("Server shutdown timeout reached, some sessions may still be running")
		err = multierr.Append(err, ctx.Err())
	}
	return err
}
