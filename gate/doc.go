// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate puts a permission check in front of message channels.
//
// A client connects and sends one gate.hello envelope naming itself.
// The server asks its permission.Checker about that client ID. On a
// grant it answers gate.welcome and both sides wrap the endpoint in a
// channel.Channel: the server side is active (it sends pings), the
// client side passive. On anything else it answers gate.rejected with
// a reason and closes the endpoint. No channel exists for a client
// that was not granted.
//
// The handshake uses the same codec as the channel that follows, so a
// JSON server speaks JSON from the first byte.
package gate
