// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission decides whether a client may connect.
//
// A [Checker] resolves each client ID at most once per process:
//
//  1. Concurrent and repeated [Checker.Check] calls for the same ID
//     share one pending decision, so the operator is never prompted
//     twice and the store is never consulted twice for one client.
//  2. The stored selection map (package selection) is loaded once,
//     lazily, and shared by every check. A stored value is final: true
//     grants, false denies and fires [Config.OnStoredRejection].
//  3. A client with no stored value goes to the [Prompter], with the
//     known-app or unknown-app variant chosen from the [Registry].
//  4. A grant is recorded in memory at once and written back to the
//     store in the background. Denials and cancellations are never
//     written, so a later process prompts again; within this process
//     they stay memoized.
//
// A store read failure fails the check with [ErrStorageRead]. A store
// write failure is logged with [ErrStorageWrite] and does not change
// the decision already returned.
package permission
