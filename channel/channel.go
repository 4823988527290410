// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gatekeeper/heartbeat"
	"github.com/bureau-foundation/gatekeeper/message"
)

var (
	// ErrDisposed is returned by Send once the channel is disposed.
	ErrDisposed = errors.New("channel disposed")

	// ErrProtocolViolation is the disposal cause when the peer sends
	// bytes that do not decode as an envelope.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTransport is the disposal cause when the endpoint fails to
	// send or receive.
	ErrTransport = errors.New("transport failure")

	// ErrDisconnected is the disposal cause when the peer closes the
	// endpoint.
	ErrDisconnected = errors.New("peer disconnected")
)

// Handler processes the payload of one incoming message. Handlers run
// on the channel's dispatch goroutine and must not block for long:
// heartbeat pongs queue behind them. No handler starts once the channel
// is disposed, but a handler already running when disposal happens on
// another goroutine runs to completion.
type Handler = func(data any)

// Role selects which half of the heartbeat a channel runs.
type Role int

const (
	// RolePassive answers pings.
	RolePassive Role = iota
	// RoleActive sends pings and disposes the channel when the peer
	// stops answering.
	RoleActive
)

func (r Role) String() string {
	if r == RoleActive {
		return "active"
	}
	return "passive"
}

// Config describes a channel. Endpoint is required.
type Config struct {
	Endpoint Endpoint

	// Codec encodes envelopes. Nil means message.CBOR().
	Codec message.Codec

	Role Role

	// Heartbeat configures the Pinger for RoleActive. Its Logger
	// defaults to the channel logger.
	Heartbeat heartbeat.Config

	// Services are registered before the dispatch goroutine starts,
	// so no early message misses its handler.
	Services map[string]Handler

	// Default receives messages with no registered handler.
	Default Handler

	// ID labels the channel in logs. Empty means a random UUID.
	ID string

	// Logger receives lifecycle and protocol events. Nil discards.
	Logger *slog.Logger
}

// stopper is the part of either heartbeat role the channel needs.
type stopper interface {
	Stop()
}

// Channel is a typed, service-multiplexed message channel over one
// endpoint.
type Channel struct {
	id       string
	endpoint Endpoint
	codec    message.Codec
	logger   *slog.Logger

	// sendMu serializes endpoint writes between handlers and the
	// heartbeat timer.
	sendMu sync.Mutex

	mu        sync.Mutex
	handlers  map[string]Handler
	fallback  Handler
	disposed  bool
	cause     error
	closeErr  error
	heartbeat stopper
	pinger    *heartbeat.Pinger

	done chan struct{}
	// dispatched is closed when the dispatch goroutine returns.
	dispatched chan struct{}
}

// New wraps config.Endpoint, attaches the heartbeat for config.Role and
// starts dispatching. The channel owns the endpoint from here on.
func New(config Config) *Channel {
	if config.Endpoint == nil {
		panic("channel.New: Endpoint is required")
	}
	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}
	codec := config.Codec
	if codec == nil {
		codec = message.CBOR()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("channel", id)

	c := &Channel{
		id:         id,
		endpoint:   config.Endpoint,
		codec:      codec,
		logger:     logger,
		handlers:   make(map[string]Handler, len(config.Services)+1),
		fallback:   config.Default,
		done:       make(chan struct{}),
		dispatched: make(chan struct{}),
	}
	for service, handler := range config.Services {
		c.Handle(service, handler)
	}

	switch config.Role {
	case RoleActive:
		heartbeatConfig := config.Heartbeat
		if heartbeatConfig.Logger == nil {
			heartbeatConfig.Logger = logger
		}
		c.pinger = heartbeat.NewPinger(c, heartbeatConfig)
		c.heartbeat = c.pinger
	default:
		c.heartbeat = heartbeat.NewResponder(c, logger)
	}

	logger.Debug("channel open", "role", config.Role.String(), "codec", codec.Name())
	go c.dispatch()
	return c
}

// ID returns the channel's log label.
func (c *Channel) ID() string { return c.id }

// Pinger returns the active heartbeat, or nil for a passive channel.
func (c *Channel) Pinger() *heartbeat.Pinger { return c.pinger }

// Handle registers the handler for service. Registering a name twice
// panics: service tables are wired at startup and a duplicate is a
// programming error. The heartbeat names are registered by New.
// Handle on a disposed channel does nothing.
func (c *Channel) Handle(service string, handler Handler) {
	if handler == nil {
		panic(fmt.Sprintf("channel: nil handler for service %q", service))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	if _, exists := c.handlers[service]; exists {
		panic(fmt.Sprintf("channel: duplicate handler for service %q", service))
	}
	c.handlers[service] = handler
}

// HandleDefault installs the handler for messages whose type has no
// registered handler, replacing any previous default.
func (c *Channel) HandleDefault(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.fallback = handler
}

// Send encodes data as a message for service and writes it to the
// endpoint. It returns ErrDisposed on a disposed channel. An endpoint
// failure disposes the channel and is returned wrapped in ErrTransport;
// it is never retried.
func (c *Channel) Send(service string, data any) error {
	if c.isDisposed() {
		return ErrDisposed
	}
	encoded, err := c.codec.Encode(message.Message{Type: service, Data: data})
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	if c.isDisposed() {
		c.sendMu.Unlock()
		return ErrDisposed
	}
	err = c.endpoint.Send(encoded)
	c.sendMu.Unlock()

	if err != nil {
		if c.isDisposed() {
			return ErrDisposed
		}
		failure := fmt.Errorf("%w: sending %q: %v", ErrTransport, service, err)
		c.dispose(failure)
		return failure
	}
	return nil
}

// Close disposes the channel. It is idempotent and returns the error
// from closing the endpoint, if any, on every call.
func (c *Channel) Close() error {
	c.dispose(nil)
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// CloseWithError disposes the channel with cause as the reason
// reported by Err. A nil cause behaves like Close.
func (c *Channel) CloseWithError(cause error) {
	c.dispose(cause)
}

// Done is closed once the channel is disposed and its endpoint closed.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns why the channel was disposed: nil while open or after an
// explicit Close, otherwise an error matching one of the package
// sentinels or heartbeat.ErrPeerUnresponsive.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *Channel) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Channel) dispose(cause error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.cause = cause
	beat := c.heartbeat
	c.handlers = nil
	c.fallback = nil
	c.mu.Unlock()

	beat.Stop()
	closeErr := c.endpoint.Close()

	c.mu.Lock()
	c.closeErr = closeErr
	c.mu.Unlock()

	if cause != nil {
		c.logger.Info("channel disposed", "cause", cause)
	} else {
		c.logger.Debug("channel closed")
	}
	close(c.done)
}

func (c *Channel) lookup(service string) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, false
	}
	if handler, exists := c.handlers[service]; exists {
		return handler, true
	}
	return c.fallback, true
}

// dispatch reads and delivers messages until the endpoint fails or the
// channel is disposed.
func (c *Channel) dispatch() {
	defer close(c.dispatched)
	for {
		raw, err := c.endpoint.Receive()
		if err != nil {
			if c.isDisposed() {
				return
			}
			if errors.Is(err, io.EOF) {
				c.dispose(ErrDisconnected)
			} else {
				c.dispose(fmt.Errorf("%w: receiving: %v", ErrTransport, err))
			}
			return
		}

		decoded, err := c.codec.Decode(raw)
		if err != nil {
			c.logger.Error("undecodable message from peer", "error", err, "bytes", len(raw))
			c.dispose(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return
		}

		handler, open := c.lookup(decoded.Type)
		if !open {
			return
		}
		if handler == nil {
			c.logger.Debug("no handler for message", "type", decoded.Type)
			continue
		}
		if c.isDisposed() {
			return
		}
		handler(decoded.Data)
	}
}
