// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/bureau-foundation/gatekeeper/lib/sealed"
)

// ErrInvalidKey is returned for keys that are empty or contain
// characters other than letters, digits, '.', '_' and '-', or that
// start with '.'.
var ErrInvalidKey = errors.New("invalid store key")

// Store is a durable map from key to bytes.
type Store interface {
	// Get returns the value for key. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// ValidateKey reports whether key can be used with every backend. The
// File backend turns keys into file names, so the rule is the
// intersection of what all backends accept.
func ValidateKey(key string) error {
	if len(key) > 128 || !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Options select and configure a backend for Open.
type Options struct {
	Backend Backend

	// Path is the directory for BackendFile and the database file for
	// BackendSQLite. Ignored for BackendMemory.
	Path string

	// SealIdentity, when set, wraps the backend in Sealed. Open takes
	// ownership and closes it with the store.
	SealIdentity *sealed.Identity

	// SealRecipients are extra public keys (escrow) every value is
	// also sealed to.
	SealRecipients []string

	Logger *slog.Logger
}

// Open builds the store described by options.
func Open(options Options) (Store, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var store Store
	var err error
	switch options.Backend {
	case BackendFile, "":
		store, err = OpenFile(options.Path)
	case BackendSQLite:
		store, err = OpenSQLite(SQLiteConfig{Path: options.Path, Logger: logger})
	case BackendMemory:
		store = NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q (want file, sqlite or memory)", options.Backend)
	}
	if err != nil {
		return nil, err
	}

	if options.SealIdentity != nil {
		wrapped, err := NewSealed(store, options.SealIdentity, options.SealRecipients)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("store values sealed at rest",
			"recipient", options.SealIdentity.Recipient,
			"escrow_recipients", len(options.SealRecipients),
		)
		store = wrapped
	}
	return store, nil
}
