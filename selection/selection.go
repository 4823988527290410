// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package selection reads and writes the durable map of client ID to
// the user's stored decision.
//
// The map is one JSON object under [Key]. Only grants are ever written:
// a stored false can exist only if something other than [Save] wrote
// it, and [Load] passes it through so the caller can treat it as a
// stored denial. Load never fails on bad content. A blob that is not a
// JSON object yields an empty map, and an entry whose value is not a
// boolean is dropped; both are logged as warnings.
package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"
)

// Key is the store key holding the selection map.
const Key = "selections"

// Store is the persistent key/value surface the selection map lives in.
// lib/kvstore's backends satisfy it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Load reads the selection map. A missing key is an empty map. Only a
// store read failure is returned as an error.
func Load(ctx context.Context, store Store, logger *slog.Logger) (map[string]bool, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	blob, found, err := store.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", Key, err)
	}
	if !found {
		return make(map[string]bool), nil
	}
	return Parse(blob, logger), nil
}

// Parse decodes a stored blob with the same corruption tolerance as
// Load.
func Parse(blob []byte, logger *slog.Logger) map[string]bool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	selections := make(map[string]bool)

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(blob, &entries); err != nil || entries == nil {
		logger.Warn("stored selections are not a JSON object, ignoring them",
			"key", Key,
			"bytes", len(blob),
			"error", err,
		)
		return selections
	}

	for clientID, raw := range entries {
		// A bare null decodes into a *bool as nil rather than failing.
		var granted *bool
		if err := json.Unmarshal(raw, &granted); err != nil || granted == nil {
			logger.Warn("dropping stored selection with non-boolean value",
				"client_id", clientID,
				"value", truncate(string(raw), 64),
			)
			continue
		}
		selections[clientID] = *granted
	}
	return selections
}

// Save writes the grants in selections, replacing the stored map.
// False entries are omitted.
func Save(ctx context.Context, store Store, selections map[string]bool) error {
	blob, err := Encode(selections)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, Key, blob); err != nil {
		return fmt.Errorf("writing %s: %w", Key, err)
	}
	return nil
}

// Encode renders the grants in selections as the stored JSON object.
func Encode(selections map[string]bool) ([]byte, error) {
	grants := make(map[string]bool, len(selections))
	for clientID, granted := range selections {
		if granted {
			grants[clientID] = true
		}
	}
	blob, err := json.Marshal(grants)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", Key, err)
	}
	return blob, nil
}

// Remove deletes clientID's stored decision, so the next check for it
// prompts again. It reports whether an entry existed. Corrupt entries
// are dropped from the rewritten map as a side effect.
func Remove(ctx context.Context, store Store, clientID string, logger *slog.Logger) (bool, error) {
	selections, err := Load(ctx, store, logger)
	if err != nil {
		return false, err
	}
	if _, exists := selections[clientID]; !exists {
		return false, nil
	}
	delete(selections, clientID)
	if err := Save(ctx, store, selections); err != nil {
		return false, err
	}
	return true, nil
}

// Sorted returns the client IDs in selections in lexical order, for
// stable listings.
func Sorted(selections map[string]bool) []string {
	clientIDs := make([]string, 0, len(selections))
	for clientID := range selections {
		clientIDs = append(clientIDs, clientID)
	}
	sort.Strings(clientIDs)
	return clientIDs
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	for limit > 0 && !utf8.RuneStart(value[limit]) {
		limit--
	}
	return value[:limit] + "..."
}
