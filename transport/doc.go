// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the message endpoints a gatekeeper channel
// runs over.
//
// Every endpoint moves discrete messages, in order, with at-most-once
// delivery, and reports an orderly disconnect as io.EOF from Receive.
// None of them detect a silent peer; that is the heartbeat's job.
//
//   - [Stream] frames messages over any net.Conn with a 4-byte
//     big-endian length prefix. [ListenUnix] and [DialUnix] produce
//     Streams over Unix sockets, and the listener records the peer's
//     SO_PEERCRED credentials for audit logging.
//   - [DataChannel] adapts a message-mode pion/webrtc data channel.
//     Data channels preserve message boundaries, so no framing is
//     added. [DataChannelListener] accepts the data channels a remote
//     peer opens on one PeerConnection; [DialDataChannel] opens one.
//     Signaling is the caller's business.
//   - [Pipe] connects two in-process endpoints, for tests and for
//     embedding a client in the same process as the service.
//   - [Compress] wraps any endpoint with per-message lz4 or zstd
//     compression.
package transport
