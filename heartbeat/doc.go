// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package heartbeat detects peers that have stopped answering on a
// connection the transport still reports as open.
//
// The protocol is a symmetric pair. The active side runs a [Pinger]:
// it sends a [PingService] message on a schedule and counts probes that
// have not been answered. The passive side runs a [Responder], which
// answers every ping with exactly one [PongService] message. Payloads
// are empty in both directions.
//
// The Pinger probes every Config.InitialInterval until the first pong
// arrives, then every Config.Interval. Each pong resets the unanswered
// count to zero; the first pong also fires Config.OnEstablished, once.
// When a probe tick finds Config.MaxMissed probes still unanswered, the
// Pinger closes its connection with [ErrPeerUnresponsive]. That is the
// only way a half-open connection is reclaimed.
//
// Both halves are built on the [Conn] interface (send, register a
// handler, close with a cause), which the channel package implements.
// The channel owns its heartbeat and stops it before closing the
// underlying endpoint.
package heartbeat
