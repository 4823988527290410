// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

func plainStyles() styles {
	renderer := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.Ascii))
	renderer.SetColorProfile(termenv.Ascii)
	return newStyles(renderer, DefaultTheme)
}

func keyPress(text string) tea.KeyMsg {
	switch text {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func TestModelAnswers(t *testing.T) {
	cases := []struct {
		key  string
		want Answer
	}{
		{"y", AnswerGrant},
		{"a", AnswerGrant},
		{"n", AnswerDeny},
		{"d", AnswerDeny},
		{"esc", AnswerCancel},
		{"ctrl+c", AnswerCancel},
		{"q", AnswerCancel},
	}
	for _, testCase := range cases {
		t.Run(testCase.key, func(t *testing.T) {
			m := newModel(Request{ClientID: "app-A"}, DefaultKeyMap, plainStyles())
			updated, cmd := m.Update(keyPress(testCase.key))
			result := updated.(model)
			if !result.answered || result.answer != testCase.want {
				t.Fatalf("after %q: answered=%v answer=%v, want %v", testCase.key, result.answered, result.answer, testCase.want)
			}
			if cmd == nil {
				t.Fatal("answer should quit the program")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Errorf("command produced %T, want tea.QuitMsg", cmd())
			}
			if result.View() != "" {
				t.Error("View after answering should be empty")
			}
		})
	}
}

func TestModelIgnoresOtherKeys(t *testing.T) {
	m := newModel(Request{ClientID: "app-A"}, DefaultKeyMap, plainStyles())
	for _, text := range []string{"enter", "x", "Y "} {
		updated, cmd := m.Update(keyPress(text))
		if updated.(model).answered || cmd != nil {
			t.Errorf("key %q answered the prompt", text)
		}
	}
}

func TestViewKnownApp(t *testing.T) {
	m := newModel(Request{ClientID: "app-A", Known: true, ClientName: "Foo"}, DefaultKeyMap, plainStyles())
	view := m.View()
	for _, want := range []string{"Connection request", "Foo wants to connect.", "app-A", Fingerprint("app-A"), "allow", "deny"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "Unknown application") {
		t.Error("known app shown with the unknown-app warning")
	}
}

func TestViewUnknownAppWarns(t *testing.T) {
	m := newModel(Request{ClientID: "app-B"}, DefaultKeyMap, plainStyles())
	view := m.View()
	if !strings.Contains(view, "Unknown application") {
		t.Errorf("unknown app view has no warning:\n%s", view)
	}
	if !strings.Contains(view, "app-B") {
		t.Errorf("unknown app view does not show the client ID:\n%s", view)
	}
}

func TestViewTruncatesToWidth(t *testing.T) {
	m := newModel(Request{ClientID: strings.Repeat("x", 300)}, DefaultKeyMap, plainStyles())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 50, Height: 20})
	view := updated.(model).View()
	for _, line := range strings.Split(strings.TrimRight(view, "\n"), "\n") {
		if width := ansi.StringWidth(line); width > 50 {
			t.Fatalf("line is %d cells wide, terminal is 50:\n%s", width, line)
		}
	}
	if !strings.Contains(view, "…") {
		t.Error("long client ID was not truncated with an ellipsis")
	}
}

func TestFingerprint(t *testing.T) {
	first := Fingerprint("com.example.app")
	if first != Fingerprint("com.example.app") {
		t.Error("Fingerprint is not stable")
	}
	if first == Fingerprint("com.examp1e.app") {
		t.Error("lookalike IDs share a fingerprint")
	}
	if !regexp.MustCompile(`^[0-9a-f]{4}(-[0-9a-f]{4}){3}$`).MatchString(first) {
		t.Errorf("Fingerprint = %q, want xxxx-xxxx-xxxx-xxxx", first)
	}
}

func TestFixed(t *testing.T) {
	answer, err := Fixed(AnswerDeny).Prompt(context.Background(), Request{ClientID: "x"})
	if err != nil || answer != AnswerDeny {
		t.Fatalf("Fixed(deny) = %v, %v", answer, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Fixed(AnswerGrant).Prompt(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Fixed on a cancelled context = %v, want context.Canceled", err)
	}
}

func TestParseAnswer(t *testing.T) {
	for name, want := range map[string]Answer{"allow": AnswerGrant, "grant": AnswerGrant, "deny": AnswerDeny, "cancel": AnswerCancel} {
		got, err := ParseAnswer(name)
		if err != nil || got != want {
			t.Errorf("ParseAnswer(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseAnswer("maybe"); err == nil {
		t.Error("ParseAnswer(maybe) should fail")
	}
}

func TestTerminalPrompt(t *testing.T) {
	var output bytes.Buffer
	terminal, err := NewTerminal(TerminalConfig{
		Input:  strings.NewReader("n"),
		Output: &output,
	})
	if err != nil {
		t.Fatalf("NewTerminal: %v", err)
	}

	answer, err := terminal.Prompt(context.Background(), Request{ClientID: "app-B"})
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if answer != AnswerDeny {
		t.Errorf("answer = %v, want deny", answer)
	}
}

func TestTerminalPromptCancelledContext(t *testing.T) {
	terminal, err := NewTerminal(TerminalConfig{Input: strings.NewReader(""), Output: io.Discard})
	if err != nil {
		t.Fatalf("NewTerminal: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer, err := terminal.Prompt(ctx, Request{ClientID: "app-A"})
	if !errors.Is(err, context.Canceled) || answer != AnswerCancel {
		t.Fatalf("Prompt on cancelled context = %v, %v", answer, err)
	}
}
