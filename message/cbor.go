// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"fmt"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
)

const cborName = "cbor"

// CBOR returns the CBOR envelope codec.
func CBOR() Codec { return cborCodec{} }

type cborCodec struct{}

type cborEnvelope struct {
	Type *string `cbor:"type"`
	Data any     `cbor:"data"`
}

func (cborCodec) Name() string { return cborName }

func (cborCodec) Encode(m Message) ([]byte, error) {
	if err := validateType(m.Type); err != nil {
		return nil, err
	}
	data, err := codec.Marshal(cborEnvelope{Type: &m.Type, Data: m.Data})
	if err != nil {
		return nil, fmt.Errorf("encoding %q message: %w", m.Type, err)
	}
	return data, nil
}

func (cborCodec) Decode(data []byte) (Message, error) {
	var envelope cborEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if envelope.Type == nil || *envelope.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return Message{Type: *envelope.Type, Data: envelope.Data}, nil
}
