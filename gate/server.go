// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/gatekeeper/channel"
	"github.com/bureau-foundation/gatekeeper/heartbeat"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/message"
	"github.com/bureau-foundation/gatekeeper/permission"
	"github.com/bureau-foundation/gatekeeper/transport"
)

// Checker decides whether a client may open a channel.
// *permission.Checker satisfies it.
type Checker interface {
	Check(ctx context.Context, clientID string) (permission.Decision, error)
}

// Handler processes one message on a granted session. It runs on the
// session's dispatch goroutine.
type Handler func(session *Session, data any)

// Session is one granted client connection.
type Session struct {
	ClientID string
	Peer     transport.Peer
	Channel  *channel.Channel
	Opened   time.Time

	ready chan struct{}
}

// Reply sends a message to the session's client.
func (s *Session) Reply(service string, data any) error {
	return s.Channel.Send(service, data)
}

// Server accepts endpoints from Listener, gates each through Checker
// and serves the granted ones as active channels.
type Server struct {
	Listener transport.Listener
	Checker  Checker

	// Codec is used for the handshake and the channel. Nil means
	// message.CBOR().
	Codec message.Codec

	// Heartbeat configures each session's Pinger. A zero Clock or
	// Logger is filled from the server's.
	Heartbeat heartbeat.Config

	// Services are registered on every session. StatusService is
	// added unless Services already names it.
	Services map[string]Handler

	// Default receives messages for unregistered services.
	Default Handler

	// HandshakeTimeout bounds the wait for gate.hello. Zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// OnSession, if set, is called after a session opens and before
	// gate.welcome is sent.
	OnSession func(*Session)

	Logger *slog.Logger
	Clock  clock.Clock

	mu       sync.Mutex
	sessions map[*Session]struct{}
	stopping bool
	started  time.Time

	connections sync.WaitGroup
}

// Channels returns the number of open sessions.
func (s *Server) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns the open sessions.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. On return every session has been closed and every handshake
// in flight has finished. A cancelled ctx is a clean shutdown and
// returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if s.Listener == nil || s.Checker == nil {
		return errors.New("gate.Server: Listener and Checker are required")
	}
	if s.Codec == nil {
		s.Codec = message.CBOR()
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Clock == nil {
		s.Clock = clock.Real()
	}
	if s.HandshakeTimeout <= 0 {
		s.HandshakeTimeout = DefaultHandshakeTimeout
	}
	s.mu.Lock()
	s.sessions = make(map[*Session]struct{})
	s.stopping = false
	s.started = s.Clock.Now()
	s.mu.Unlock()

	s.Logger.Info("gate listening",
		"address", s.Listener.Address(),
		"codec", s.Codec.Name(),
	)

	var serveErr error
	for {
		conn, err := s.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				break
			}
			serveErr = fmt.Errorf("accepting: %w", err)
			break
		}

		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	for _, session := range s.Sessions() {
		session.Channel.Close()
	}
	s.connections.Wait()
	s.Logger.Info("gate stopped")
	return serveErr
}

func (s *Server) handleConnection(ctx context.Context, conn transport.Conn) {
	peer := conn.Peer()
	logger := s.Logger.With(peer.LogAttrs()...)
	logger.Debug("connection accepted")

	clientID, err := s.readHello(ctx, conn)
	if err != nil {
		conn.Close()
		if ctx.Err() == nil {
			logger.Warn("handshake failed", "error", err)
		}
		return
	}
	logger = logger.With("client_id", clientID)

	decision, err := s.Checker.Check(ctx, clientID)
	if err != nil {
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		logger.Error("permission check failed", "error", err)
		s.reject(conn, "permission check failed", logger)
		return
	}
	if !decision.Granted {
		logger.Info("client rejected", "reason", decision.Reason.String())
		s.reject(conn, decision.Reason.String(), logger)
		return
	}

	session := s.open(conn, clientID, peer, logger)
	if session == nil {
		return
	}
	logger.Info("client admitted",
		"channel", session.Channel.ID(),
		"reason", decision.Reason.String(),
	)
	<-session.Channel.Done()
	s.closed(session, logger)
}

// readHello waits for the client's first envelope, bounded by the
// handshake timeout and ctx.
func (s *Server) readHello(ctx context.Context, conn transport.Conn) (string, error) {
	var timedOut atomic.Bool
	timer := s.Clock.AfterFunc(s.HandshakeTimeout, func() {
		timedOut.Store(true)
		conn.Close()
	})
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	envelope, err := receive(conn, s.Codec)
	timer.Stop()
	stop()

	if timedOut.Load() {
		return "", ErrHandshakeTimeout
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: reading hello: %v", ErrHandshake, err)
	}
	if envelope.Type != HelloService {
		return "", fmt.Errorf("%w: expected %q, got %q", ErrHandshake, HelloService, envelope.Type)
	}
	var hello Hello
	if err := message.DecodeData(envelope.Data, &hello); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := validateClientID(hello.ClientID); err != nil {
		return "", err
	}
	return hello.ClientID, nil
}

func (s *Server) reject(conn transport.Conn, reason string, logger *slog.Logger) {
	if err := send(conn, s.Codec, RejectedService, Rejected{Reason: reason}); err != nil {
		logger.Debug("sending rejection failed", "error", err)
	}
	conn.Close()
}

// open builds the active channel for a granted client, registers it
// and sends gate.welcome. It returns nil if the client vanished first.
func (s *Server) open(conn transport.Conn, clientID string, peer transport.Peer, logger *slog.Logger) *Session {
	session := &Session{
		ClientID: clientID,
		Peer:     peer,
		Opened:   s.Clock.Now(),
		ready:    make(chan struct{}),
	}

	services := make(map[string]channel.Handler, len(s.Services)+1)
	for name, handler := range s.Services {
		services[name] = session.bind(handler)
	}
	if _, exists := services[StatusService]; !exists {
		services[StatusService] = session.bind(s.status)
	}
	var fallback channel.Handler
	if s.Default != nil {
		fallback = session.bind(s.Default)
	}

	heartbeatConfig := s.Heartbeat
	if heartbeatConfig.Clock == nil {
		heartbeatConfig.Clock = s.Clock
	}
	session.Channel = channel.New(channel.Config{
		Endpoint:  conn,
		Codec:     s.Codec,
		Role:      channel.RoleActive,
		Heartbeat: heartbeatConfig,
		Services:  services,
		Default:   fallback,
		Logger:    logger,
	})

	s.mu.Lock()
	stopping := s.stopping
	if !stopping {
		s.sessions[session] = struct{}{}
	}
	s.mu.Unlock()
	if stopping {
		close(session.ready)
		session.Channel.Close()
		return nil
	}

	if s.OnSession != nil {
		s.OnSession(session)
	}
	close(session.ready)

	if err := session.Channel.Send(WelcomeService, Welcome{ChannelID: session.Channel.ID()}); err != nil {
		logger.Warn("sending welcome failed", "error", err)
		session.Channel.Close()
		s.closed(session, logger)
		return nil
	}
	return session
}

func (s *Server) closed(session *Session, logger *slog.Logger) {
	s.mu.Lock()
	_, present := s.sessions[session]
	delete(s.sessions, session)
	s.mu.Unlock()
	if !present {
		return
	}
	logger.Info("session closed",
		"channel", session.Channel.ID(),
		"duration", s.Clock.Now().Sub(session.Opened).String(),
		"cause", session.Channel.Err(),
	)
}

// status answers gate.status with the server's view of the session.
func (s *Server) status(session *Session, _ any) {
	s.mu.Lock()
	channels := len(s.sessions)
	uptime := s.Clock.Now().Sub(s.started)
	s.mu.Unlock()

	session.Reply(StatusService, Status{
		ClientID:  session.ClientID,
		ChannelID: session.Channel.ID(),
		Channels:  channels,
		Uptime:    uptime.Round(time.Second).String(),
	})
}

// bind adapts a session handler to a channel handler. Dispatch waits
// until the session is fully registered.
func (s *Session) bind(handler Handler) channel.Handler {
	return func(data any) {
		<-s.ready
		handler(s, data)
	}
}
