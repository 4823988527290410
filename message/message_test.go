// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"errors"
	"testing"
)

type attachment struct {
	Name    string `cbor:"name"`
	Content []byte `cbor:"content"`
}

func codecs() []Codec {
	return []Codec{CBOR(), JSON()}
}

func TestRoundTripNestedBinary(t *testing.T) {
	payload := map[string]any{
		"blob": []byte{0x00, 0x01, 0xfe, 0xff},
		"list": []any{
			[]byte("first"),
			map[string]any{"inner": []byte{}},
			"plain text",
		},
		"nested": map[string]any{
			"deeper": map[string]any{"raw": bytes.Repeat([]byte{0xab}, 300)},
		},
	}

	for _, c := range codecs() {
		t.Run(c.Name(), func(t *testing.T) {
			encoded, err := c.Encode(Message{Type: "blob.put", Data: payload})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Type != "blob.put" {
				t.Errorf("Type = %q, want blob.put", decoded.Type)
			}

			data := decoded.Data.(map[string]any)
			if got := data["blob"].([]byte); !bytes.Equal(got, []byte{0x00, 0x01, 0xfe, 0xff}) {
				t.Errorf("blob = %x", got)
			}
			list := data["list"].([]any)
			if got := list[0].([]byte); string(got) != "first" {
				t.Errorf("list[0] = %q", got)
			}
			if got := list[1].(map[string]any)["inner"].([]byte); len(got) != 0 {
				t.Errorf("list[1].inner = %x, want empty", got)
			}
			if got := list[2].(string); got != "plain text" {
				t.Errorf("list[2] = %q", got)
			}
			raw := data["nested"].(map[string]any)["deeper"].(map[string]any)["raw"].([]byte)
			if !bytes.Equal(raw, bytes.Repeat([]byte{0xab}, 300)) {
				t.Errorf("nested raw bytes mismatch (len %d)", len(raw))
			}
		})
	}
}

func TestEncodeDoesNotMutatePayload(t *testing.T) {
	blob := []byte{1, 2, 3}
	payload := map[string]any{"blob": blob}

	if _, err := JSON().Encode(Message{Type: "x", Data: payload}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, ok := payload["blob"].([]byte); !ok || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("payload mutated: %#v", payload["blob"])
	}
}

func TestStructPayloadDecodeData(t *testing.T) {
	for _, c := range codecs() {
		t.Run(c.Name(), func(t *testing.T) {
			in := attachment{Name: "key.bin", Content: []byte{0xde, 0xad, 0xbe, 0xef}}
			encoded, err := c.Encode(Message{Type: "attach", Data: in})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			var out attachment
			if err := DecodeData(decoded.Data, &out); err != nil {
				t.Fatalf("DecodeData: %v", err)
			}
			if out.Name != in.Name || !bytes.Equal(out.Content, in.Content) {
				t.Errorf("got %+v, want %+v", out, in)
			}
		})
	}
}

func TestJSONNumbersDecodeIntoIntegers(t *testing.T) {
	encoded, err := JSON().Encode(Message{Type: "count", Data: map[string]any{"n": 42, "neg": -7, "f": 1.5}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := JSON().Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var out struct {
		N   int     `cbor:"n"`
		Neg int     `cbor:"neg"`
		F   float64 `cbor:"f"`
	}
	if err := DecodeData(decoded.Data, &out); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if out.N != 42 || out.Neg != -7 || out.F != 1.5 {
		t.Errorf("got %+v", out)
	}
}

func TestNilPayload(t *testing.T) {
	for _, c := range codecs() {
		t.Run(c.Name(), func(t *testing.T) {
			encoded, err := c.Encode(Message{Type: "heartbeat.ping"})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Type != "heartbeat.ping" || decoded.Data != nil {
				t.Errorf("got %+v", decoded)
			}
		})
	}
}

func TestEncodeRejectsEmptyType(t *testing.T) {
	for _, c := range codecs() {
		if _, err := c.Encode(Message{Data: "x"}); err == nil {
			t.Errorf("%s: expected error for empty type", c.Name())
		}
	}
}

func TestJSONEncodeRejectsReservedKey(t *testing.T) {
	_, err := JSON().Encode(Message{Type: "x", Data: map[string]any{
		"outer": map[string]any{"$binary": "AAAA"},
	}})
	if !errors.Is(err, ErrReservedKey) {
		t.Fatalf("err = %v, want ErrReservedKey", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		input []byte
	}{
		{"cbor garbage", CBOR(), []byte{0xff, 0x00, 0x13}},
		{"cbor not a map", CBOR(), mustCBOR(t, []any{"type", "x"})},
		{"cbor missing type", CBOR(), mustCBOR(t, map[string]any{"data": 1})},
		{"cbor numeric type", CBOR(), mustCBOR(t, map[string]any{"type": 7})},
		{"cbor empty type", CBOR(), mustCBOR(t, map[string]any{"type": ""})},
		{"json garbage", JSON(), []byte(`{"type":`)},
		{"json array", JSON(), []byte(`["type","x"]`)},
		{"json missing type", JSON(), []byte(`{"data":{}}`)},
		{"json numeric type", JSON(), []byte(`{"type":3,"data":null}`)},
		{"json bad base64", JSON(), []byte(`{"type":"x","data":{"$binary":"!!!"}}`)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := test.codec.Decode(test.input)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": "cbor", "cbor": "cbor", "json": "json"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c.Name() != want {
			t.Errorf("ByName(%q).Name() = %q, want %q", name, c.Name(), want)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Error("ByName(xml) should fail")
	}
}

func mustCBOR(t *testing.T, value any) []byte {
	t.Helper()
	encoded, err := cborMarshal(value)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return encoded
}
