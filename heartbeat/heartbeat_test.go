// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeConn records sends and lets tests deliver messages to the
// registered handlers directly.
type fakeConn struct {
	mu       sync.Mutex
	handlers map[string]func(any)
	sent     []string
	sendErr  error
	closed   []error
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]func(any))}
}

func (c *fakeConn) Send(service string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, service)
	return nil
}

func (c *fakeConn) Handle(service string, handler func(any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[service]; exists {
		panic("duplicate handler " + service)
	}
	c.handlers[service] = handler
}

func (c *fakeConn) CloseWithError(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, cause)
}

func (c *fakeConn) deliver(service string) {
	c.mu.Lock()
	handler := c.handlers[service]
	c.mu.Unlock()
	handler(nil)
}

func (c *fakeConn) sentCount(service string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, s := range c.sent {
		if s == service {
			count++
		}
	}
	return count
}

func (c *fakeConn) closeCauses() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.closed...)
}

func testConfig(fake *clock.FakeClock) Config {
	return Config{
		InitialInterval: time.Second,
		Interval:        5 * time.Second,
		MaxMissed:       3,
		Clock:           fake,
	}
}

func TestPingerTimesOutAfterExactlyMaxMissed(t *testing.T) {
	fake := clock.Fake(epoch)
	conn := newFakeConn()
	pinger := NewPinger(conn, testConfig(fake))

	if pinger.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", pinger.State())
	}

	for probe := 1; probe <= 3; probe++ {
		fake.Advance(time.Second)
		if got := conn.sentCount(PingService); got != probe {
			t.Fatalf("after tick %d: %d pings sent, want %d", probe, got, probe)
		}
		if causes := conn.closeCauses(); len(causes) != 0 {
			t.Fatalf("closed after only %d missed probes: %v", probe, causes)
		}
		if pinger.Outstanding() != probe {
			t.Fatalf("outstanding = %d, want %d", pinger.Outstanding(), probe)
		}
	}

	fake.Advance(time.Second)

	causes := conn.closeCauses()
	if len(causes) != 1 {
		t.Fatalf("close called %d times, want 1", len(causes))
	}
	if !errors.Is(causes[0], ErrPeerUnresponsive) {
		t.Fatalf("close cause = %v, want ErrPeerUnresponsive", causes[0])
	}
	if got := conn.sentCount(PingService); got != 3 {
		t.Fatalf("%d pings sent, want no fourth probe", got)
	}
	if pinger.State() != StateFailed {
		t.Fatalf("state = %v, want failed", pinger.State())
	}
	if fake.PendingCount() != 0 {
		t.Fatalf("%d timers still pending after failure", fake.PendingCount())
	}

	// Nothing more happens after failure.
	fake.Advance(time.Minute)
	if len(conn.closeCauses()) != 1 {
		t.Fatal("close called again after failure")
	}
}

func TestPingerEstablishedFiresOnce(t *testing.T) {
	fake := clock.Fake(epoch)
	conn := newFakeConn()
	established := 0
	config := testConfig(fake)
	config.OnEstablished = func() { established++ }
	pinger := NewPinger(conn, config)

	fake.Advance(time.Second)
	if established != 0 {
		t.Fatal("established fired before any pong")
	}

	conn.deliver(PongService)
	if established != 1 {
		t.Fatalf("established fired %d times after first pong, want 1", established)
	}
	if pinger.State() != StateEstablished {
		t.Fatalf("state = %v, want established", pinger.State())
	}
	if !pinger.LastPong().Equal(epoch.Add(time.Second)) {
		t.Fatalf("LastPong = %v", pinger.LastPong())
	}

	for range 5 {
		conn.deliver(PongService)
	}
	if established != 1 {
		t.Fatalf("established fired %d times after more pongs, want 1", established)
	}
}

func TestPingerPongResetsMissedCount(t *testing.T) {
	fake := clock.Fake(epoch)
	conn := newFakeConn()
	pinger := NewPinger(conn, testConfig(fake))

	// Two probes unanswered, then a pong.
	fake.Advance(time.Second)
	fake.Advance(time.Second)
	if pinger.Outstanding() != 2 {
		t.Fatalf("outstanding = %d, want 2", pinger.Outstanding())
	}
	conn.deliver(PongService)
	if pinger.Outstanding() != 0 {
		t.Fatalf("outstanding after pong = %d, want 0", pinger.Outstanding())
	}

	// The pending timer was scheduled with the initial interval; every
	// probe after it uses the steady interval.
	fake.Advance(time.Second)
	if got := conn.sentCount(PingService); got != 3 {
		t.Fatalf("pings = %d, want 3", got)
	}
	fake.Advance(time.Second)
	if got := conn.sentCount(PingService); got != 3 {
		t.Fatalf("probe sent before the steady interval elapsed (pings = %d)", got)
	}
	fake.Advance(4 * time.Second)
	if got := conn.sentCount(PingService); got != 4 {
		t.Fatalf("pings = %d, want 4 after steady interval", got)
	}

	// Probes 3, 4 and 5 go unanswered; the tick after probe 5 fails.
	fake.Advance(5 * time.Second)
	if got := conn.sentCount(PingService); got != 5 {
		t.Fatalf("pings = %d, want 5", got)
	}
	if len(conn.closeCauses()) != 0 {
		t.Fatal("closed before the retry budget was spent")
	}
	fake.Advance(5 * time.Second)
	if causes := conn.closeCauses(); len(causes) != 1 || !errors.Is(causes[0], ErrPeerUnresponsive) {
		t.Fatalf("close causes = %v, want one ErrPeerUnresponsive", causes)
	}
}

func TestPingerStopCancelsTimers(t *testing.T) {
	fake := clock.Fake(epoch)
	conn := newFakeConn()
	pinger := NewPinger(conn, testConfig(fake))

	if fake.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", fake.PendingCount())
	}
	pinger.Stop()
	pinger.Stop()
	if fake.PendingCount() != 0 {
		t.Fatalf("PendingCount after Stop = %d, want 0", fake.PendingCount())
	}

	fake.Advance(time.Minute)
	if got := conn.sentCount(PingService); got != 0 {
		t.Fatalf("%d pings sent after Stop", got)
	}
	if pinger.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", pinger.State())
	}

	// A pong racing with Stop is ignored.
	established := false
	pinger.config.OnEstablished = func() { established = true }
	conn.deliver(PongService)
	if established {
		t.Fatal("OnEstablished fired after Stop")
	}
}

func TestPingerSendFailureDoesNotPanic(t *testing.T) {
	fake := clock.Fake(epoch)
	conn := newFakeConn()
	conn.sendErr = errors.New("broken pipe")
	pinger := NewPinger(conn, testConfig(fake))

	// The probe counts as outstanding even though the send failed; a
	// real channel has already disposed itself and will Stop the
	// pinger.
	fake.Advance(time.Second)
	if pinger.Outstanding() != 1 {
		t.Fatalf("outstanding = %d, want 1", pinger.Outstanding())
	}
	pinger.Stop()
	if fake.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", fake.PendingCount())
	}
}

func TestResponderAnswersEveryPing(t *testing.T) {
	conn := newFakeConn()
	NewResponder(conn, nil)

	for range 4 {
		conn.deliver(PingService)
	}
	if got := conn.sentCount(PongService); got != 4 {
		t.Fatalf("pongs = %d, want 4", got)
	}
}

func TestResponderIgnoresSendFailure(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("channel disposed")
	responder := NewResponder(conn, nil)

	conn.deliver(PingService)
	responder.Stop()
	if len(conn.closeCauses()) != 0 {
		t.Fatal("responder should not close the connection on a failed pong")
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:        "idle",
		StateProbing:     "probing",
		StateEstablished: "established",
		StateFailed:      "failed",
		StateStopped:     "stopped",
		State(42):        "State(42)",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
