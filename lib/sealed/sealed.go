// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

// ErrNoRecipients is returned by Encrypt with an empty recipient list.
var ErrNoRecipients = errors.New("at least one recipient is required")

// Identity is an age x25519 keypair whose private half lives in
// protected memory. The caller must Close it.
type Identity struct {
	privateKey *secret.Buffer

	// Recipient is the public key in age1... format. Safe to publish.
	Recipient string
}

// GenerateIdentity creates a fresh keypair.
func GenerateIdentity() (*Identity, error) {
	generated, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	// The string form is a heap copy we cannot avoid; the Buffer is
	// the durable one.
	privateKey, err := secret.NewFromBytes([]byte(generated.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Identity{privateKey: privateKey, Recipient: generated.Recipient().String()}, nil
}

// LoadIdentity reads an age identity file as written by age-keygen.
func LoadIdentity(path string) (*Identity, error) {
	privateKey, err := secret.ReadKeyFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		privateKey.Close()
		return nil, fmt.Errorf("parsing identity in %s: %w", path, err)
	}
	return &Identity{privateKey: privateKey, Recipient: parsed.Recipient().String()}, nil
}

// PrivateKey returns the AGE-SECRET-KEY-1... string. It exists so a
// freshly generated identity can be written to disk once; never log it.
func (i *Identity) PrivateKey() string {
	return i.privateKey.String()
}

// Decrypt opens ciphertext produced by Encrypt for this identity.
func (i *Identity) Decrypt(ciphertext []byte) ([]byte, error) {
	parsed, err := age.ParseX25519Identity(i.privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// Close zeros and releases the private key. Idempotent.
func (i *Identity) Close() error {
	if i.privateKey == nil {
		return nil
	}
	return i.privateKey.Close()
}

// Encrypt seals plaintext to every recipient in recipientKeys (age1...
// public keys). Any one of the matching identities can decrypt.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, ErrNoRecipients
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := ParseRecipient(key)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// ParseRecipient validates an age public key.
func ParseRecipient(publicKey string) (*age.X25519Recipient, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid age public key %q: %w", publicKey, err)
	}
	return recipient, nil
}
