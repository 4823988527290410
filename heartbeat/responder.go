// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import "log/slog"

// Responder is the passive half of the heartbeat: one pong per ping,
// with no queuing and no rate limiting.
type Responder struct {
	conn   Conn
	logger *slog.Logger
}

// NewResponder registers the ping handler on conn.
func NewResponder(conn Conn, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Responder{conn: conn, logger: logger}
	conn.Handle(PingService, r.onPing)
	return r
}

// Stop releases nothing; the Responder holds no timers. It exists so
// a channel can stop either heartbeat role the same way.
func (r *Responder) Stop() {}

func (r *Responder) onPing(any) {
	// A disposed connection drops the pong; that is not an error.
	if err := r.conn.Send(PongService, nil); err != nil {
		r.logger.Debug("pong not sent", "error", err)
	}
}
