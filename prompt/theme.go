// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import "github.com/charmbracelet/lipgloss"

// Theme is the modal's palette, in ANSI 256-color codes.
type Theme struct {
	Border      lipgloss.Color
	WarnBorder  lipgloss.Color
	Title       lipgloss.Color
	Warning     lipgloss.Color
	NormalText  lipgloss.Color
	FaintText   lipgloss.Color
	HelpKey     lipgloss.Color
	Fingerprint lipgloss.Color
}

// DefaultTheme suits dark terminal backgrounds.
var DefaultTheme = Theme{
	Border:      lipgloss.Color("62"),
	WarnBorder:  lipgloss.Color("208"),
	Title:       lipgloss.Color("255"),
	Warning:     lipgloss.Color("214"),
	NormalText:  lipgloss.Color("252"),
	FaintText:   lipgloss.Color("243"),
	HelpKey:     lipgloss.Color("39"),
	Fingerprint: lipgloss.Color("117"),
}

// styles are the theme bound to one renderer, so the color profile
// follows the prompt's output rather than os.Stdout.
type styles struct {
	box         lipgloss.Style
	warnBox     lipgloss.Style
	title       lipgloss.Style
	warning     lipgloss.Style
	text        lipgloss.Style
	faint       lipgloss.Style
	helpKey     lipgloss.Style
	fingerprint lipgloss.Style
}

func newStyles(renderer *lipgloss.Renderer, theme Theme) styles {
	box := renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Padding(1, 2)
	return styles{
		box:         box,
		warnBox:     box.BorderForeground(theme.WarnBorder),
		title:       renderer.NewStyle().Bold(true).Foreground(theme.Title),
		warning:     renderer.NewStyle().Bold(true).Foreground(theme.Warning),
		text:        renderer.NewStyle().Foreground(theme.NormalText),
		faint:       renderer.NewStyle().Foreground(theme.FaintText),
		helpKey:     renderer.NewStyle().Bold(true).Foreground(theme.HelpKey),
		fingerprint: renderer.NewStyle().Foreground(theme.Fingerprint),
	}
}
