// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package knownapps is the read-only registry of client applications
// the operator recognizes. The permission prompt uses it only to pick
// between the "known app" wording and the warning shown for an
// unrecognized client.
//
// Registries are authored as JSONC (JSON with comments and trailing
// commas) or YAML:
//
//	// apps.jsonc
//	[
//	  {"id": "com.example.editor", "name": "Example Editor"},
//	]
package knownapps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// App is one recognized client.
type App struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Registry maps client IDs to apps. The zero value is an empty
// registry. A Registry is immutable after construction and safe for
// concurrent Lookup.
type Registry struct {
	apps map[string]App
}

// New builds a registry, rejecting empty IDs and duplicates.
func New(apps ...App) (*Registry, error) {
	registry := &Registry{apps: make(map[string]App, len(apps))}
	for index, app := range apps {
		if app.ID == "" {
			return nil, fmt.Errorf("app %d: id is required", index)
		}
		if _, duplicate := registry.apps[app.ID]; duplicate {
			return nil, fmt.Errorf("app %d: duplicate id %q", index, app.ID)
		}
		if app.Name == "" {
			app.Name = app.ID
		}
		registry.apps[app.ID] = app
	}
	return registry, nil
}

// Lookup returns the app registered under clientID.
func (r *Registry) Lookup(clientID string) (App, bool) {
	if r == nil {
		return App{}, false
	}
	app, found := r.apps[clientID]
	return app, found
}

// Len returns the number of registered apps.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.apps)
}

// Load reads a registry file. The format follows the extension: .yaml
// or .yml is YAML, anything else is JSONC.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading known apps: %w", err)
	}

	var apps []App
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &apps)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &apps)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing known apps %s: %w", path, err)
	}

	registry, err := New(apps...)
	if err != nil {
		return nil, fmt.Errorf("known apps %s: %w", path, err)
	}
	return registry, nil
}
