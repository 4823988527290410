// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt asks the operator whether a client may connect.
//
// [Terminal] shows a modal in the controlling terminal and waits for a
// key. [Fixed] answers every request the same way, for headless
// deployments (deny everything not already granted) and tests.
package prompt

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Request describes the client awaiting a decision.
type Request struct {
	ClientID string

	// Known reports whether the client is in the known apps registry.
	// Unknown clients get a warning variant of the prompt.
	Known bool

	// ClientName is the registry display name. Empty when !Known.
	ClientName string
}

// Answer is the operator's response.
type Answer int

const (
	// AnswerCancel means the prompt was dismissed without a choice.
	AnswerCancel Answer = iota
	AnswerGrant
	AnswerDeny
)

func (a Answer) String() string {
	switch a {
	case AnswerGrant:
		return "grant"
	case AnswerDeny:
		return "deny"
	default:
		return "cancel"
	}
}

// ParseAnswer maps a configured answer name to an Answer.
func ParseAnswer(name string) (Answer, error) {
	switch name {
	case "grant", "allow":
		return AnswerGrant, nil
	case "deny":
		return AnswerDeny, nil
	case "cancel":
		return AnswerCancel, nil
	default:
		return AnswerCancel, fmt.Errorf("unknown prompt answer %q (want allow, deny or cancel)", name)
	}
}

// Fixed answers every request with answer.
type Fixed Answer

// Prompt returns the fixed answer, or the context error if ctx is
// already done.
func (f Fixed) Prompt(ctx context.Context, _ Request) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return AnswerCancel, err
	}
	return Answer(f), nil
}

// Fingerprint returns a short, stable digest of clientID for the
// operator to compare against what the client displays. Two IDs that
// differ only in lookalike characters get unrelated fingerprints.
func Fingerprint(clientID string) string {
	digest := blake3.Sum256([]byte(clientID))
	encoded := hex.EncodeToString(digest[:8])
	return encoded[0:4] + "-" + encoded[4:8] + "-" + encoded[8:12] + "-" + encoded[12:16]
}
