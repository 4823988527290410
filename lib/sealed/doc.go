// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts store values at rest with age.
//
// An [Identity] is an age x25519 private key held in a [secret.Buffer]
// (mmap memory outside the Go heap). [Encrypt] seals plaintext to one
// or more age public keys in the binary age format; [Identity.Decrypt]
// opens it. Sealing to an extra escrow recipient lets an operator read
// the selection store without the service's key.
//
// Used by lib/kvstore's Sealed wrapper. Depends on lib/secret.
package sealed
