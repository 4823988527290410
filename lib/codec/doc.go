// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds gatekeeper's single CBOR configuration so every
// package encodes identically.
//
// CBOR is the default wire format between the gate service and its
// clients: byte strings are a native CBOR type, so binary payloads cross
// the wire without any substitution step. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2); the same logical value always
// produces the same bytes.
//
// Decoding into an any target yields the generic tree used by the
// message package: map[string]any for maps, []any for arrays, []byte for
// byte strings, string, bool, uint64/int64, float64 and nil.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Struct tags follow one rule: a `cbor` tag marks a type that only ever
// travels as CBOR (handshake frames, heartbeat payloads); a `json` tag
// marks a type that is also written as JSON (selection blobs, known-app
// files). fxamacker/cbor reads `json` tags when `cbor` tags are absent.
package codec
