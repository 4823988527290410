// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("endpoint closed")

// ErrMessageTooLarge is returned when a message exceeds the endpoint's
// size limit, in either direction.
var ErrMessageTooLarge = errors.New("message too large")

// DefaultMaxMessageSize bounds a single message. Envelopes are small
// control messages; 4 MiB leaves room for binary payloads without
// letting an untrusted client make the service allocate without limit.
const DefaultMaxMessageSize = 4 << 20

// Conn is a message endpoint plus what is known about the far end. It
// satisfies channel.Endpoint.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
	Peer() Peer
}

// Listener accepts inbound endpoints.
type Listener interface {
	// Accept blocks until a peer connects, ctx is cancelled, or the
	// listener is closed.
	Accept(ctx context.Context) (Conn, error)

	// Address describes where the listener is reachable.
	Address() string

	Close() error
}

// Peer describes the remote end of a Conn.
type Peer struct {
	// Network is "unix", "tcp", "webrtc" or "pipe".
	Network string

	// Address is the remote address or a synthetic label.
	Address string

	// Credentials is set for Unix sockets on platforms that report
	// SO_PEERCRED.
	Credentials *Credentials
}

// Credentials are the kernel-reported identity of a Unix socket peer.
// They are captured at connect time.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

func (p Peer) String() string {
	if p.Credentials != nil {
		return fmt.Sprintf("%s:%s (pid %d uid %d)", p.Network, p.Address, p.Credentials.PID, p.Credentials.UID)
	}
	return p.Network + ":" + p.Address
}

// LogAttrs returns key/value pairs for slog calls.
func (p Peer) LogAttrs() []any {
	attrs := []any{"peer_network", p.Network, "peer_address", p.Address}
	if p.Credentials != nil {
		attrs = append(attrs,
			"peer_pid", p.Credentials.PID,
			"peer_uid", p.Credentials.UID,
			"peer_gid", p.Credentials.GID,
		)
	}
	return attrs
}
