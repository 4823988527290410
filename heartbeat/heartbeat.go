// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"errors"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

// Reserved service names. No application handler may use them.
const (
	PingService = "heartbeat.ping"
	PongService = "heartbeat.pong"
)

// ErrPeerUnresponsive is the close cause when too many probes go
// unanswered.
var ErrPeerUnresponsive = errors.New("peer unresponsive")

// Conn is the surface of a message channel that the heartbeat needs.
type Conn interface {
	// Send delivers one message to the peer.
	Send(service string, data any) error

	// Handle registers the handler for a service name.
	Handle(service string, handler func(data any))

	// CloseWithError disposes the connection, recording cause.
	CloseWithError(cause error)
}

// Default timing. The steady-state interval is longer than the initial
// one: before the peer has answered once there is nothing to trust, so
// probing is aggressive; afterwards probes only need to catch a peer
// that has gone away.
const (
	DefaultInitialInterval = 1 * time.Second
	DefaultInterval        = 5 * time.Second
	DefaultMaxMissed       = 3
)

// Config controls a Pinger. Zero values take the defaults above.
type Config struct {
	// InitialInterval is the probe period until the first pong.
	InitialInterval time.Duration

	// Interval is the probe period after the first pong.
	Interval time.Duration

	// MaxMissed is the number of consecutive unanswered probes that
	// declares the peer dead.
	MaxMissed int

	// OnEstablished, if set, is called exactly once, on the first
	// pong. It runs on the goroutine that delivered the pong and must
	// not block.
	OnEstablished func()

	// Clock drives the probe schedule. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives probe failures. Nil discards.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxMissed <= 0 {
		c.MaxMissed = DefaultMaxMissed
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
