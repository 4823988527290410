// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for gatekeeper
// binaries.
//
// Configuration is loaded from a single file specified by either the
// GATEKEEPER_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// is stricter: the prompt may not be configured to allow every client,
// and with no production section the store defaults to SQLite.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${GATEKEEPER_STATE}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Store, Heartbeat, Prompt
//     and Transport
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other gatekeeper packages.
package config
