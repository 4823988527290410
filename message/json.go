// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
)

const jsonName = "json"

// JSON returns the JSON envelope codec. Binary values in the payload
// are carried as {"$binary": "<base64>"} objects.
func JSON() Codec { return jsonCodec{} }

type jsonCodec struct{}

type jsonEnvelope struct {
	Type *string        `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (jsonCodec) Name() string { return jsonName }

func (jsonCodec) Encode(m Message) ([]byte, error) {
	if err := validateType(m.Type); err != nil {
		return nil, err
	}
	tree, err := normalize(m.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding %q message: %w", m.Type, err)
	}
	substituted, err := substituteBinary(tree)
	if err != nil {
		return nil, fmt.Errorf("encoding %q message: %w", m.Type, err)
	}
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: m.Type, Data: substituted})
	if err != nil {
		return nil, fmt.Errorf("encoding %q message: %w", m.Type, err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Message, error) {
	var envelope jsonEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if envelope.Type == nil || *envelope.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var payload any
	if len(envelope.Data) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(envelope.Data))
		decoder.UseNumber()
		if err := decoder.Decode(&payload); err != nil {
			return Message{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
		}
	}
	restored, err := restoreBinary(payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Message{Type: *envelope.Type, Data: restored}, nil
}

// normalize converts an arbitrary Go value into the generic tree the
// substitution walk understands. Going through CBOR keeps []byte values
// as []byte, where a JSON round trip would already have turned them
// into base64 strings indistinguishable from text.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	encoded, err := codec.Marshal(value)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := codec.Unmarshal(encoded, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
