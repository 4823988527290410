// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names a per-message compression algorithm.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a configured compression name. The empty
// string means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// compressionThreshold is the smallest message worth compressing.
// Heartbeats and handshake frames are far below it and go out with
// only the one-byte marker.
const compressionThreshold = 256

// Per-message marker byte.
const (
	markerRaw        byte = 0x00
	markerCompressed byte = 0x01
)

// ErrCorruptFrame is returned by Receive when a compressed message
// cannot be decoded.
var ErrCorruptFrame = errors.New("corrupt compressed message")

// Compressed wraps a Conn with per-message compression. Both ends must
// wrap with the same algorithm.
type Compressed struct {
	inner     Conn
	algorithm Compression
	maxSize   int

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

var _ Conn = (*Compressed)(nil)

// Compress wraps inner. CompressionNone returns inner unchanged.
// maxSize bounds the decompressed size of one message; zero means
// DefaultMaxMessageSize.
func Compress(inner Conn, algorithm Compression, maxSize int) (Conn, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	switch algorithm {
	case "", CompressionNone:
		return inner, nil
	case CompressionLZ4:
		return &Compressed{inner: inner, algorithm: algorithm, maxSize: maxSize}, nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxSize)), zstd.WithDecoderConcurrency(1))
		if err != nil {
			encoder.Close()
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return &Compressed{
			inner:       inner,
			algorithm:   algorithm,
			maxSize:     maxSize,
			zstdEncoder: encoder,
			zstdDecoder: decoder,
		}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", algorithm)
	}
}

// Send compresses data when it is large enough to benefit, and sends
// it raw otherwise or when compression does not shrink it.
func (c *Compressed) Send(data []byte) error {
	if len(data) >= compressionThreshold {
		compressed, err := c.compress(data)
		if err != nil {
			return err
		}
		if compressed != nil && len(compressed) < len(data) {
			return c.inner.Send(append([]byte{markerCompressed}, compressed...))
		}
	}
	return c.inner.Send(append([]byte{markerRaw}, data...))
}

// Receive returns the next message, decompressed.
func (c *Compressed) Receive() ([]byte, error) {
	frame, err := c.inner.Receive()
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCorruptFrame)
	}
	switch frame[0] {
	case markerRaw:
		return frame[1:], nil
	case markerCompressed:
		data, err := c.decompress(frame[1:])
		if errors.Is(err, ErrMessageTooLarge) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown marker 0x%02x", ErrCorruptFrame, frame[0])
	}
}

// Close closes the wrapped endpoint and releases codec state.
func (c *Compressed) Close() error {
	err := c.inner.Close()
	if c.zstdEncoder != nil {
		c.zstdEncoder.Close()
	}
	if c.zstdDecoder != nil {
		c.zstdDecoder.Close()
	}
	return err
}

// Peer describes the wrapped endpoint's peer.
func (c *Compressed) Peer() Peer { return c.inner.Peer() }

// compress returns nil when the input is incompressible.
func (c *Compressed) compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionZstd:
		return c.zstdEncoder.EncodeAll(data, nil), nil
	default:
		// lz4 blocks do not record their decompressed size; prefix it.
		buffer := make([]byte, 4+lz4.CompressBlockBound(len(data)))
		binary.BigEndian.PutUint32(buffer, uint32(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, buffer[4:])
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		return buffer[:4+n], nil
	}
}

func (c *Compressed) decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionZstd:
		out, err := c.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, err
		}
		if len(out) > c.maxSize {
			return nil, ErrMessageTooLarge
		}
		return out, nil
	default:
		if len(data) < 4 {
			return nil, errors.New("lz4 frame shorter than its size prefix")
		}
		size := int(binary.BigEndian.Uint32(data))
		if size > c.maxSize {
			return nil, ErrMessageTooLarge
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data[4:], out)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, fmt.Errorf("lz4 block decoded to %d bytes, header said %d", n, size)
		}
		return out, nil
	}
}

// CompressedListener wraps every Conn its inner Listener accepts.
type CompressedListener struct {
	Listener
	algorithm Compression
	maxSize   int
}

// CompressListener wraps inner so accepted Conns use algorithm.
// CompressionNone returns inner unchanged.
func CompressListener(inner Listener, algorithm Compression, maxSize int) Listener {
	if algorithm == "" || algorithm == CompressionNone {
		return inner
	}
	return &CompressedListener{Listener: inner, algorithm: algorithm, maxSize: maxSize}
}

func (l *CompressedListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.Listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	wrapped, err := Compress(conn, l.algorithm, l.maxSize)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return wrapped, nil
}
