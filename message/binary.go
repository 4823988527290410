// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// binaryKey is the sole key of the object that stands in for a byte
// string in JSON payloads.
const binaryKey = "$binary"

// ErrReservedKey is returned when a payload map would be ambiguous with
// a substituted byte string.
var ErrReservedKey = errors.New(`payload object with the single key "$binary" is reserved`)

// substituteBinary walks a generic tree and replaces each []byte with
// {"$binary": base64}. Maps and slices are copied, never mutated.
func substituteBinary(value any) (any, error) {
	switch typed := value.(type) {
	case []byte:
		return map[string]any{binaryKey: base64.StdEncoding.EncodeToString(typed)}, nil
	case map[string]any:
		if isBinaryObject(typed) {
			return nil, ErrReservedKey
		}
		out := make(map[string]any, len(typed))
		for key, element := range typed {
			substituted, err := substituteBinary(element)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = substituted
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for index, element := range typed {
			substituted, err := substituteBinary(element)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", index, err)
			}
			out[index] = substituted
		}
		return out, nil
	default:
		return value, nil
	}
}

// restoreBinary reverses substituteBinary on a tree decoded with
// json.Decoder.UseNumber. Numbers become int64 when integral and
// float64 otherwise, matching what the CBOR codec produces closely
// enough for DecodeData.
func restoreBinary(value any) (any, error) {
	switch typed := value.(type) {
	case map[string]any:
		if isBinaryObject(typed) {
			encoded, _ := typed[binaryKey].(string)
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", binaryKey, err)
			}
			return decoded, nil
		}
		out := make(map[string]any, len(typed))
		for key, element := range typed {
			restored, err := restoreBinary(element)
			if err != nil {
				return nil, err
			}
			out[key] = restored
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for index, element := range typed {
			restored, err := restoreBinary(element)
			if err != nil {
				return nil, err
			}
			out[index] = restored
		}
		return out, nil
	case json.Number:
		if integer, err := strconv.ParseInt(typed.String(), 10, 64); err == nil {
			return integer, nil
		}
		if unsigned, err := strconv.ParseUint(typed.String(), 10, 64); err == nil {
			return unsigned, nil
		}
		return typed.Float64()
	default:
		return value, nil
	}
}

func isBinaryObject(object map[string]any) bool {
	if len(object) != 1 {
		return false
	}
	_, isString := object[binaryKey].(string)
	return isString
}
