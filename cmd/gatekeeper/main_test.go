// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/gatekeeper/lib/kvstore"
	"github.com/bureau-foundation/gatekeeper/lib/sealed"
	"github.com/bureau-foundation/gatekeeper/selection"
)

// writeConfig points a config at a fresh state directory and returns
// its path along with the store directory.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	state := t.TempDir()
	configPath := filepath.Join(state, "gatekeeper.yaml")
	content := "paths:\n  state: " + state + "\nprompt:\n  mode: deny\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath, filepath.Join(state, "selections")
}

func seed(t *testing.T, storeDir, blob string) {
	t.Helper()
	store, err := kvstore.OpenFile(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(context.Background(), selection.Key, []byte(blob)); err != nil {
		t.Fatal(err)
	}
}

func TestSelectionsList(t *testing.T) {
	configPath, storeDir := writeConfig(t)
	seed(t, storeDir, `{"app-B": true, "app-A": true, "app-X": false, "broken": 7}`)

	var stdout bytes.Buffer
	if err := run([]string{"--config", configPath, "selections", "list"}, &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("output has %d lines:\n%s", len(lines), stdout.String())
	}
	for index, want := range []string{"CLIENT", "app-A", "app-B", "app-X"} {
		if !strings.HasPrefix(lines[index], want) {
			t.Errorf("line %d = %q, want prefix %q", index, lines[index], want)
		}
	}
	if !strings.Contains(lines[3], "denied") {
		t.Errorf("app-X line = %q", lines[3])
	}
}

func TestSelectionsListEmpty(t *testing.T) {
	configPath, _ := writeConfig(t)
	var stdout bytes.Buffer
	if err := run([]string{"--config", configPath, "selections", "list"}, &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "no stored selections") {
		t.Errorf("output = %q", stdout.String())
	}
}

func TestSelectionsRevoke(t *testing.T) {
	configPath, storeDir := writeConfig(t)
	seed(t, storeDir, `{"app-A": true, "app-B": true}`)

	var stdout bytes.Buffer
	if err := run([]string{"--config", configPath, "selections", "revoke", "app-A"}, &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "revoked app-A") {
		t.Errorf("output = %q", stdout.String())
	}

	store, _ := kvstore.OpenFile(storeDir)
	remaining, err := selection.Load(context.Background(), store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, present := remaining["app-A"]; present || !remaining["app-B"] {
		t.Errorf("after revoke: %v", remaining)
	}

	stdout.Reset()
	if err := run([]string{"--config", configPath, "selections", "revoke", "app-A"}, &stdout); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if !strings.Contains(stdout.String(), "no stored selection") {
		t.Errorf("second revoke output = %q", stdout.String())
	}
}

func TestIdentityGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	var stdout bytes.Buffer
	if err := run([]string{"identity", "generate", path}, &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}
	recipient := strings.TrimSpace(stdout.String())
	if !strings.HasPrefix(recipient, "age1") {
		t.Errorf("printed recipient %q", recipient)
	}

	identity, err := sealed.LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	defer identity.Close()
	if identity.Recipient != recipient {
		t.Errorf("file recipient %q, printed %q", identity.Recipient, recipient)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("identity file mode %v", info.Mode().Perm())
	}
	if err := run([]string{"identity", "generate", path}, &stdout); err == nil {
		t.Error("generate overwrote an existing identity")
	}
}

func TestUnknownCommands(t *testing.T) {
	var stdout bytes.Buffer
	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"selections"},
		{"identity", "rotate", "x"},
	} {
		if err := run(args, &stdout); err == nil {
			t.Errorf("run(%q) succeeded", args)
		}
	}
}
