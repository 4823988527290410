// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/gatekeeper/channel"
	"github.com/bureau-foundation/gatekeeper/message"
)

// Handshake and built-in service names.
const (
	HelloService    = "gate.hello"
	WelcomeService  = "gate.welcome"
	RejectedService = "gate.rejected"
	StatusService   = "gate.status"
)

// DefaultHandshakeTimeout bounds how long the server waits for a
// client's hello. It does not cover the permission check, which may
// wait on the operator for much longer.
const DefaultHandshakeTimeout = 10 * time.Second

// MaxClientIDLength caps the client ID accepted in a hello.
const MaxClientIDLength = 256

var (
	// ErrHandshake is returned when the peer's first envelope is not
	// the expected handshake message.
	ErrHandshake = errors.New("handshake failed")

	// ErrHandshakeTimeout is returned when the client sends nothing
	// within the handshake timeout.
	ErrHandshakeTimeout = errors.New("handshake timed out")
)

// Hello is the client's first envelope.
type Hello struct {
	ClientID string `cbor:"client_id" json:"client_id"`
}

// Welcome confirms the channel is open.
type Welcome struct {
	ChannelID string `cbor:"channel_id,omitempty" json:"channel_id,omitempty"`
}

// Rejected explains why the channel was not opened.
type Rejected struct {
	Reason string `cbor:"reason" json:"reason"`
}

// Status is the reply to a gate.status request.
type Status struct {
	ClientID  string `cbor:"client_id" json:"client_id"`
	ChannelID string `cbor:"channel_id" json:"channel_id"`
	Channels  int    `cbor:"channels" json:"channels"`
	Uptime    string `cbor:"uptime" json:"uptime"`
}

// RejectedError is returned by Dial when the server refused the client.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "gate rejected client: " + e.Reason
}

// receive reads and decodes one envelope.
func receive(endpoint channel.Endpoint, codec message.Codec) (message.Message, error) {
	raw, err := endpoint.Receive()
	if err != nil {
		return message.Message{}, err
	}
	return codec.Decode(raw)
}

// send encodes and writes one envelope.
func send(endpoint channel.Endpoint, codec message.Codec, service string, data any) error {
	encoded, err := codec.Encode(message.Message{Type: service, Data: data})
	if err != nil {
		return err
	}
	return endpoint.Send(encoded)
}

func validateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: empty client ID", ErrHandshake)
	}
	if len(clientID) > MaxClientIDLength {
		return fmt.Errorf("%w: client ID is %d bytes (limit %d)", ErrHandshake, len(clientID), MaxClientIDLength)
	}
	return nil
}
