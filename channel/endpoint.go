// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

// Endpoint is a duplex, ordered, reliable transport for discrete
// messages. The channel calls Send from one goroutine at a time and
// Receive from its dispatch goroutine only.
//
// Implementations live in the transport package.
type Endpoint interface {
	// Send delivers one message to the peer. An error is fatal to the
	// channel.
	Send(data []byte) error

	// Receive blocks until the next message arrives. It returns
	// io.EOF when the peer disconnects in an orderly way and an error
	// once Close has been called.
	Receive() ([]byte, error)

	// Close tears the endpoint down and unblocks Receive.
	Close() error
}
