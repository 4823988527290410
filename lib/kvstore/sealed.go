// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/gatekeeper/lib/sealed"
)

// ErrUnsealable is returned by Sealed.Get when a stored value cannot
// be decrypted with the store's identity.
var ErrUnsealable = errors.New("stored value cannot be unsealed")

// Sealed encrypts values with age before handing them to the wrapped
// store. Keys are stored in the clear.
type Sealed struct {
	inner      Store
	identity   *sealed.Identity
	recipients []string
}

var _ Store = (*Sealed)(nil)

// NewSealed wraps inner. Values are sealed to identity's own recipient
// plus every key in escrow. Sealed owns identity and closes it.
func NewSealed(inner Store, identity *sealed.Identity, escrow []string) (*Sealed, error) {
	recipients := append([]string{identity.Recipient}, escrow...)
	for _, recipient := range escrow {
		if _, err := sealed.ParseRecipient(recipient); err != nil {
			return nil, err
		}
	}
	return &Sealed{inner: inner, identity: identity, recipients: recipients}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ciphertext, found, err := s.inner.Get(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	plaintext, err := s.identity.Decrypt(ciphertext)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrUnsealable, key, err)
	}
	return plaintext, true, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	ciphertext, err := sealed.Encrypt(value, s.recipients)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, ciphertext)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Close closes the wrapped store and releases the identity.
func (s *Sealed) Close() error {
	err := s.inner.Close()
	if identityErr := s.identity.Close(); err == nil {
		err = identityErr
	}
	return err
}
