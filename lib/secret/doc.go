// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// [Buffer] allocates memory via mmap(MAP_ANONYMOUS), locks it into
// physical RAM via mlock and excludes it from core dumps via
// madvise(MADV_DONTDUMP). On Close the memory is zeroed, unlocked and
// unmapped. The garbage collector never sees the region, so key bytes
// do not linger in copies it made.
//
// [ReadKeyFile] loads a key file such as an age identity, skipping
// blank and "#" comment lines, straight into a Buffer.
//
// The selection store's sealing identity is the only secret gatekeeper
// holds. Depends on golang.org/x/sys/unix.
package secret
