// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for gatekeeper binaries.
// It covers the one raw I/O pattern that exists before the structured
// logger is configured: reporting a fatal error from run() to stderr
// and exiting.
package process
