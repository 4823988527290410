// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

// State is the Pinger's position in its lifecycle.
type State int

const (
	// StateIdle: the first probe is scheduled but not yet sent.
	StateIdle State = iota
	// StateProbing: probes are outstanding and no pong has been seen.
	StateProbing
	// StateEstablished: at least one pong has been received.
	StateEstablished
	// StateFailed: the peer missed too many probes and the connection
	// was closed.
	StateFailed
	// StateStopped: Stop was called.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pinger is the active half of the heartbeat.
type Pinger struct {
	conn   Conn
	config Config

	mu          sync.Mutex
	state       State
	timer       *clock.Timer
	outstanding int
	established bool
	lastPong    time.Time
}

// NewPinger registers the pong handler on conn and schedules the first
// probe. The caller owns the Pinger and must call Stop when conn is
// torn down.
func NewPinger(conn Conn, config Config) *Pinger {
	p := &Pinger{
		conn:   conn,
		config: config.withDefaults(),
	}
	conn.Handle(PongService, p.onPong)

	p.mu.Lock()
	p.timer = p.config.Clock.AfterFunc(p.config.InitialInterval, p.tick)
	p.mu.Unlock()
	return p
}

// Stop cancels the probe schedule. Safe to call at any time and more
// than once.
func (p *Pinger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateFailed || p.state == StateStopped {
		return
	}
	p.state = StateStopped
	p.timer.Stop()
	p.timer = nil
}

// State returns the current lifecycle state.
func (p *Pinger) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outstanding returns the number of probes sent since the last pong.
func (p *Pinger) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// LastPong returns when the most recent pong arrived, or the zero time.
func (p *Pinger) LastPong() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPong
}

func (p *Pinger) tick() {
	p.mu.Lock()
	if p.state == StateFailed || p.state == StateStopped {
		p.mu.Unlock()
		return
	}

	if p.outstanding >= p.config.MaxMissed {
		missed := p.outstanding
		p.state = StateFailed
		p.timer = nil
		p.mu.Unlock()

		p.config.Logger.Warn("peer stopped answering heartbeat", "missed_probes", missed)
		p.conn.CloseWithError(fmt.Errorf("%w: %d probes unanswered", ErrPeerUnresponsive, missed))
		return
	}

	p.outstanding++
	if p.state == StateIdle {
		p.state = StateProbing
	}
	interval := p.config.InitialInterval
	if p.established {
		interval = p.config.Interval
	}
	p.timer = p.config.Clock.AfterFunc(interval, p.tick)
	p.mu.Unlock()

	// A failed send has already disposed the connection, which stops
	// this Pinger.
	if err := p.conn.Send(PingService, nil); err != nil {
		p.config.Logger.Debug("heartbeat probe not sent", "error", err)
	}
}

func (p *Pinger) onPong(any) {
	p.mu.Lock()
	if p.state == StateFailed || p.state == StateStopped {
		p.mu.Unlock()
		return
	}
	p.outstanding = 0
	p.lastPong = p.config.Clock.Now()
	first := !p.established
	p.established = true
	p.state = StateEstablished
	p.mu.Unlock()

	if first && p.config.OnEstablished != nil {
		p.config.OnEstablished()
	}
}
