// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"sync"
)

// pipeBuffer is how many messages a PipeEnd holds before Send blocks.
const pipeBuffer = 64

// PipeEnd is one side of an in-process endpoint pair.
type PipeEnd struct {
	label    string
	incoming chan []byte
	peer     *PipeEnd

	// shared between both ends: closing either side closes both
	// directions, like a socket.
	state *pipeState
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

var _ Conn = (*PipeEnd)(nil)

// Pipe returns two connected endpoints. Messages sent on one are
// received on the other in order. Closing either end makes Receive on
// the other return io.EOF once it has drained what was already sent.
func Pipe() (*PipeEnd, *PipeEnd) {
	state := &pipeState{closed: make(chan struct{})}
	a := &PipeEnd{label: "pipe/a", incoming: make(chan []byte, pipeBuffer), state: state}
	b := &PipeEnd{label: "pipe/b", incoming: make(chan []byte, pipeBuffer), state: state}
	a.peer, b.peer = b, a
	return a, b
}

// Send copies data to the peer's queue. It blocks while the queue is
// full and fails once either end is closed.
func (p *PipeEnd) Send(data []byte) error {
	select {
	case <-p.state.closed:
		return ErrClosed
	default:
	}
	buffer := append([]byte(nil), data...)
	select {
	case p.peer.incoming <- buffer:
		return nil
	case <-p.state.closed:
		return ErrClosed
	}
}

// Receive returns the next queued message, or io.EOF once the pipe is
// closed and drained.
func (p *PipeEnd) Receive() ([]byte, error) {
	select {
	case data := <-p.incoming:
		return data, nil
	default:
	}
	select {
	case data := <-p.incoming:
		return data, nil
	case <-p.state.closed:
		select {
		case data := <-p.incoming:
			return data, nil
		default:
			return nil, io.EOF
		}
	}
}

// Close closes both ends. Idempotent.
func (p *PipeEnd) Close() error {
	p.state.once.Do(func() { close(p.state.closed) })
	return nil
}

// Peer labels the other end.
func (p *PipeEnd) Peer() Peer {
	return Peer{Network: "pipe", Address: p.peer.label}
}

// PipeListener is an in-process Listener. Dial creates a Pipe and
// queues one end for Accept.
type PipeListener struct {
	pending chan *PipeEnd
	once    sync.Once
	closed  chan struct{}
}

var _ Listener = (*PipeListener)(nil)

// NewPipeListener returns an open PipeListener.
func NewPipeListener() *PipeListener {
	return &PipeListener{pending: make(chan *PipeEnd), closed: make(chan struct{})}
}

// Dial connects to the listener and returns the client end. It blocks
// until Accept takes the other end, ctx ends, or the listener closes.
func (l *PipeListener) Dial(ctx context.Context) (*PipeEnd, error) {
	client, server := Pipe()
	client.label, server.label = "pipe/client", "pipe/server"
	select {
	case l.pending <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.pending:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Address() string { return "pipe" }

func (l *PipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
