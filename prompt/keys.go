// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the modal's bindings.
type KeyMap struct {
	Grant  key.Binding
	Deny   key.Binding
	Cancel key.Binding
}

// DefaultKeyMap uses y/n with a and d as alternates. There is no
// binding on enter so a stray keypress cannot grant.
var DefaultKeyMap = KeyMap{
	Grant: key.NewBinding(
		key.WithKeys("y", "a"),
		key.WithHelp("y", "allow"),
	),
	Deny: key.NewBinding(
		key.WithKeys("n", "d"),
		key.WithHelp("n", "deny"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "ctrl+c", "q"),
		key.WithHelp("esc", "dismiss"),
	),
}

func (k KeyMap) bindings() []key.Binding {
	return []key.Binding{k.Grant, k.Deny, k.Cancel}
}
