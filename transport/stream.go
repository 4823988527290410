// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// frameHeaderLength is the size of the big-endian payload length that
// precedes every message on a Stream.
const frameHeaderLength = 4

// defaultWriteTimeout bounds a single Send. A peer that stops reading
// fills the socket buffer; without a deadline Send would block the
// heartbeat forever instead of failing the channel.
const defaultWriteTimeout = 10 * time.Second

// StreamOptions tune a Stream. Zero values take the defaults.
type StreamOptions struct {
	MaxMessageSize int
	WriteTimeout   time.Duration
}

// Stream frames discrete messages over a byte stream:
// [4 bytes payload length, big-endian] [payload].
type Stream struct {
	conn    net.Conn
	peer    Peer
	options StreamOptions

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

var _ Conn = (*Stream)(nil)

// NewStream wraps conn. The Stream owns conn and closes it on Close.
func NewStream(conn net.Conn, peer Peer, options StreamOptions) *Stream {
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = DefaultMaxMessageSize
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaultWriteTimeout
	}
	if peer.Network == "" && conn.RemoteAddr() != nil {
		peer.Network = conn.RemoteAddr().Network()
		peer.Address = conn.RemoteAddr().String()
	}
	return &Stream{
		conn:    conn,
		peer:    peer,
		options: options,
		closed:  make(chan struct{}),
	}
}

// Send writes one framed message.
func (s *Stream) Send(data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	if len(data) > s.options.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLarge, len(data), s.options.MaxMessageSize)
	}

	frame := make([]byte, frameHeaderLength+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderLength:], data)

	s.conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
	if _, err := s.conn.Write(frame); err != nil {
		if s.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Receive reads one framed message. A clean close by the peer between
// frames returns io.EOF; a close in the middle of a frame returns
// io.ErrUnexpectedEOF.
func (s *Stream) Receive() ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, s.readError(err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > uint32(s.options.MaxMessageSize) {
		return nil, fmt.Errorf("%w: peer announced %d bytes, limit %d", ErrMessageTooLarge, length, s.options.MaxMessageSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, s.readError(err)
	}
	return payload, nil
}

// Close closes the underlying connection. Idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Peer describes the remote end.
func (s *Stream) Peer() Peer { return s.peer }

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) readError(err error) error {
	if s.isClosed() {
		return ErrClosed
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("reading frame: %w", err)
}
