// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for gatekeeper packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets, whose paths are limited to 108 bytes.
//
// [RequireReceive] and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Protocol
// timing in tests goes through lib/clock's fake clock; these helpers
// are the only place real wall-clock timeouts appear.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as client IDs that must not collide across
// tests sharing a store.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no gatekeeper-internal dependencies.
package testutil
