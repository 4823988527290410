// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File stores each key as a file in one directory. Values are replaced
// atomically, so a crash leaves either the old or the new value.
type File struct {
	directory string

	// mu serializes writers in this process; the rename gives
	// atomicity against readers.
	mu sync.Mutex
}

var _ Store = (*File)(nil)

// OpenFile uses directory, creating it with mode 0700 if needed.
func OpenFile(directory string) (*File, error) {
	if directory == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("file store: creating %s: %w", directory, err)
	}
	return &File{directory: directory}, nil
}

func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file store: reading %s: %w", key, err)
	}
	return data, true, nil
}

// Set writes value to a temporary file, syncs it, renames it over the
// key's file and syncs the directory. The file is created with mode
// 0600.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("file store: creating temporary file for %s: %w", key, err)
	}
	if _, err := file.Write(value); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("file store: writing %s: %w", key, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("file store: syncing %s: %w", key, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("file store: closing %s: %w", key, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("file store: renaming %s into place: %w", key, err)
	}

	f.syncDirectory()
	return nil
}

func (f *File) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: deleting %s: %w", key, err)
	}
	f.syncDirectory()
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) path(key string) string {
	return filepath.Join(f.directory, key)
}

// syncDirectory makes a rename or unlink durable across power loss.
// Failure is ignored: the data itself is already synced.
func (f *File) syncDirectory() {
	directory, err := os.Open(f.directory)
	if err != nil {
		return
	}
	directory.Sync()
	directory.Close()
}
