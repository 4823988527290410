// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
)

// ErrMalformed is wrapped by every Decode failure.
var ErrMalformed = errors.New("malformed message")

// Message is one typed envelope. Type names the service the message is
// addressed to and is never empty on a decoded message.
type Message struct {
	Type string
	Data any
}

// Codec converts envelopes to and from wire bytes. Implementations are
// safe for concurrent use.
type Codec interface {
	// Name identifies the codec in configuration and logs.
	Name() string

	// Encode serializes m. It fails if m.Type is empty or m.Data
	// cannot be represented.
	Encode(m Message) ([]byte, error)

	// Decode parses one envelope. Errors wrap ErrMalformed.
	Decode(data []byte) (Message, error)
}

// ByName returns the codec registered under name ("cbor" or "json").
func ByName(name string) (Codec, error) {
	switch name {
	case "", cborName:
		return CBOR(), nil
	case jsonName:
		return JSON(), nil
	default:
		return nil, fmt.Errorf("unknown message codec %q (want %q or %q)", name, cborName, jsonName)
	}
}

// DecodeData converts a decoded payload into the value pointed to by
// into, using the same field-name rules as the CBOR codec (cbor tags,
// falling back to json tags).
func DecodeData(data any, into any) error {
	encoded, err := codec.Marshal(data)
	if err != nil {
		return fmt.Errorf("re-encoding payload: %w", err)
	}
	if err := codec.Unmarshal(encoded, into); err != nil {
		return fmt.Errorf("decoding payload into %T: %w", into, err)
	}
	return nil
}

func validateType(messageType string) error {
	if messageType == "" {
		return errors.New("message type is required")
	}
	return nil
}
