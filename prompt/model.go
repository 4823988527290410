// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

// defaultWidth is the box width before the terminal reports its size.
const defaultWidth = 64

// model is the bubbletea model for one permission request. It quits as
// soon as any answer key is pressed.
type model struct {
	request     Request
	fingerprint string
	keys        KeyMap
	styles      styles
	width       int

	answered bool
	answer   Answer
}

func newModel(request Request, keys KeyMap, styles styles) model {
	return model{
		request:     request,
		fingerprint: Fingerprint(request.ClientID),
		keys:        keys,
		styles:      styles,
		width:       defaultWidth,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		// Leave room for the border and padding.
		m.width = min(max(message.Width-6, 20), 96)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(message, m.keys.Grant):
			return m.finish(AnswerGrant)
		case key.Matches(message, m.keys.Deny):
			return m.finish(AnswerDeny)
		case key.Matches(message, m.keys.Cancel):
			return m.finish(AnswerCancel)
		}
	}
	return m, nil
}

func (m model) finish(answer Answer) (tea.Model, tea.Cmd) {
	m.answered = true
	m.answer = answer
	return m, tea.Quit
}

func (m model) View() string {
	if m.answered {
		// Clear the modal once decided; the caller logs the outcome.
		return ""
	}

	innerWidth := m.width - 4
	fit := func(text string) string {
		if ansi.StringWidth(text) > innerWidth {
			return ansi.Truncate(text, innerWidth-1, "…")
		}
		return text
	}

	var lines []string
	box := m.styles.box
	if m.request.Known {
		lines = append(lines,
			m.styles.title.Render(fit("Connection request")),
			"",
			m.styles.text.Render(fit(m.request.ClientName+" wants to connect.")),
			m.styles.faint.Render(fit(m.request.ClientID)),
		)
	} else {
		box = m.styles.warnBox
		lines = append(lines,
			m.styles.warning.Render(fit("⚠ Unknown application")),
			"",
			m.styles.text.Render(fit(m.request.ClientID)),
			m.styles.faint.Render(fit("is not a known app. Only allow it if you started it yourself.")),
		)
	}
	lines = append(lines,
		"",
		m.styles.faint.Render("fingerprint ")+m.styles.fingerprint.Render(m.fingerprint),
		"",
		m.help(),
	)

	return box.Width(m.width).Render(strings.Join(lines, "\n")) + "\n"
}

func (m model) help() string {
	var parts []string
	for _, binding := range m.keys.bindings() {
		help := binding.Help()
		parts = append(parts, m.styles.helpKey.Render(help.Key)+" "+m.styles.faint.Render(help.Desc))
	}
	return strings.Join(parts, m.styles.faint.Render("  ·  "))
}
