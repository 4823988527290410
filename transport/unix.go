// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// UnixListener accepts Streams on a Unix socket.
type UnixListener struct {
	listener *net.UnixListener
	path     string
	options  StreamOptions
}

var _ Listener = (*UnixListener)(nil)

// ListenUnix listens on socketPath. A stale socket file at that path is
// removed first; the file is removed again on Close. The socket is
// created with mode 0660 so only the owner and group can connect.
func ListenUnix(socketPath string, options StreamOptions) (*UnixListener, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	listener.SetUnlinkOnClose(true)
	if err := os.Chmod(socketPath, 0o660); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket permissions on %s: %w", socketPath, err)
	}
	return &UnixListener{listener: listener, path: socketPath, options: options}, nil
}

// Accept waits for the next connection. Cancelling ctx unblocks it
// without closing the listener.
func (l *UnixListener) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		conn *net.UnixConn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := l.listener.AcceptUnix()
		accepted <- result{conn, err}
	}()

	select {
	case r := <-accepted:
		if r.err != nil {
			if errors.Is(r.err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("accepting on %s: %w", l.path, r.err)
		}
		return NewStream(r.conn, unixPeer(r.conn), l.options), nil
	case <-ctx.Done():
		// The pending AcceptUnix finishes when the listener closes;
		// a connection it picks up in the meantime is dropped.
		go func() {
			if r := <-accepted; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Address returns the socket path.
func (l *UnixListener) Address() string { return l.path }

// Close stops listening and removes the socket file.
func (l *UnixListener) Close() error {
	err := l.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// DialUnix connects to a UnixListener at socketPath.
func DialUnix(ctx context.Context, socketPath string, options StreamOptions) (*Stream, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return NewStream(conn, Peer{Network: "unix", Address: socketPath}, options), nil
}

func unixPeer(conn *net.UnixConn) Peer {
	peer := Peer{Network: "unix", Address: "@"}
	if address := conn.RemoteAddr(); address != nil && address.String() != "" {
		peer.Address = address.String()
	}
	peer.Credentials = peerCredentials(conn)
	return peer
}
