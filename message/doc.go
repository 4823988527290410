// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the typed envelope exchanged on a gatekeeper
// channel and the codecs that put it on the wire.
//
// A [Message] tags an arbitrary payload with the name of the service it
// is addressed to:
//
//	{type: "echo", data: {...}}
//
// Two codecs are provided. [CBOR] is the default: byte strings are a
// native CBOR type, so []byte values anywhere in the payload survive
// the round trip untouched. [JSON] exists for peers that can only speak
// text; it substitutes every []byte in the payload, recursively through
// maps and arrays, with a {"$binary": "<base64>"} object before encoding
// and reverses the substitution on decode.
//
// Decoded payloads are generic trees (map[string]any, []any, []byte,
// string, bool, numbers, nil). [DecodeData] converts a generic payload
// into a typed struct.
//
// A payload that cannot be decoded, or an envelope whose type is
// missing, empty, or not a string, yields an error wrapping
// [ErrMalformed]. Channels treat that as a protocol violation.
package message
