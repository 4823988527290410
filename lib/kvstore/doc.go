// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore provides the durable key/value stores behind the
// selection store.
//
// Every backend stores opaque byte values under short keys:
//
//   - [File] keeps one file per key in a directory, replaced atomically
//     (write temporary, fsync, rename, fsync directory).
//   - [SQLite] keeps a single table in a WAL-mode database through a
//     zombiezen sqlitex connection pool.
//   - [Memory] is a map, for tests and ephemeral runs.
//
// [Sealed] wraps any of them and encrypts values at rest with age
// (lib/sealed). [Open] builds the configured combination.
package kvstore
