// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/bureau-foundation/gatekeeper/lib/sealed"
	"github.com/bureau-foundation/gatekeeper/selection"
)

func listSelections(ctx context.Context, store selection.Store, logger *slog.Logger, stdout io.Writer) error {
	selections, err := selection.Load(ctx, store, logger)
	if err != nil {
		return err
	}
	if len(selections) == 0 {
		fmt.Fprintln(stdout, "no stored selections")
		return nil
	}

	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "CLIENT\tDECISION")
	for _, clientID := range selection.Sorted(selections) {
		decision := "denied"
		if selections[clientID] {
			decision = "granted"
		}
		fmt.Fprintf(writer, "%s\t%s\n", clientID, decision)
	}
	return writer.Flush()
}

func revokeSelection(ctx context.Context, store selection.Store, clientID string, logger *slog.Logger, stdout io.Writer) error {
	removed, err := selection.Remove(ctx, store, clientID, logger)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(stdout, "%s has no stored selection\n", clientID)
		return nil
	}
	fmt.Fprintf(stdout, "revoked %s; a running service picks this up on restart\n", clientID)
	return nil
}

// generateIdentity writes a new age identity to path (which must not
// exist) and prints its recipient for store.seal_recipients or escrow.
func generateIdentity(path string, stdout io.Writer) error {
	identity, err := sealed.GenerateIdentity()
	if err != nil {
		return err
	}
	defer identity.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	_, writeErr := fmt.Fprintf(file, "# public key: %s\n%s\n", identity.Recipient, identity.PrivateKey())
	closeErr := file.Close()
	if writeErr != nil {
		os.Remove(path)
		return fmt.Errorf("writing identity file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return fmt.Errorf("writing identity file: %w", closeErr)
	}

	fmt.Fprintln(stdout, identity.Recipient)
	return nil
}
