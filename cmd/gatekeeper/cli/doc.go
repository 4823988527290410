// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the wiring shared by the gatekeeper binaries: the
// command logger and the translation from a loaded [config.Config] to
// stores, codecs, transports and prompters.
package cli
