// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that timer-driven
// code (the heartbeat pinger, handshake deadlines) can be tested without
// sleeping.
//
// Production code holds a Clock field and is given Real(). Tests give it
// Fake(start) and drive time forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	pinger := heartbeat.NewPinger(conn, heartbeat.Config{Clock: fake})
//	fake.WaitForTimers(1)       // pinger has scheduled its first probe
//	fake.Advance(time.Second)   // probe fires synchronously
//
// AfterFunc callbacks on a FakeClock run on the goroutine that calls
// Advance, in deadline order, with no clock lock held. A callback may
// therefore schedule further timers, but must not call Advance.
package clock
