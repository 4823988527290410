// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel turns a raw message endpoint into a service-multiplexed
// message channel with liveness detection.
//
// A [Channel] owns exactly one [Endpoint]. Outgoing calls to
// [Channel.Send] wrap the payload in a [message.Message] addressed to a
// service name and encode it with the configured codec. Incoming
// messages are decoded on a single dispatch goroutine and handed, in
// arrival order and one at a time, to the handler registered for their
// type, or to the default handler.
//
// Every channel carries a heartbeat. [RoleActive] attaches a
// [heartbeat.Pinger]; [RolePassive] attaches a [heartbeat.Responder].
// The side that needs to reclaim dead peers (the gate service) is
// active; clients are passive.
//
// A channel is either open or disposed, and disposal is permanent. It
// happens on an explicit Close, on a send failure ([ErrTransport]), on
// an undecodable incoming message ([ErrProtocolViolation]), on
// disconnect ([ErrDisconnected]) and on heartbeat timeout
// ([heartbeat.ErrPeerUnresponsive]). Disposal stops the heartbeat,
// detaches the handlers and closes the endpoint, in that order. The
// owner observes it through [Channel.Done] and [Channel.Err]. Close
// never waits on the dispatch goroutine, so a handler may close its own
// channel.
package channel
