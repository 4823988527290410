// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ErrNoTerminal is returned by NewTerminal when the input is a file
// that is not a terminal.
var ErrNoTerminal = errors.New("prompt input is not a terminal")

// TerminalConfig configures a Terminal. Zero values use the process's
// stdin and stderr.
type TerminalConfig struct {
	Input  io.Reader
	Output io.Writer

	Keys  *KeyMap
	Theme *Theme

	Logger *slog.Logger
}

// Terminal prompts in a terminal. Requests are shown one at a time;
// concurrent Prompt calls queue.
type Terminal struct {
	input  io.Reader
	output io.Writer
	keys   KeyMap
	styles styles
	logger *slog.Logger

	mu sync.Mutex
}

// NewTerminal checks that Input is a terminal when it is an *os.File
// and fixes the color profile from Output.
func NewTerminal(config TerminalConfig) (*Terminal, error) {
	input := config.Input
	if input == nil {
		input = os.Stdin
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	if file, ok := input.(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		return nil, fmt.Errorf("%w: %s", ErrNoTerminal, file.Name())
	}

	keys := DefaultKeyMap
	if config.Keys != nil {
		keys = *config.Keys
	}
	theme := DefaultTheme
	if config.Theme != nil {
		theme = *config.Theme
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	profile := termenv.NewOutput(output).EnvColorProfile()
	renderer := lipgloss.NewRenderer(output, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)

	return &Terminal{
		input:  input,
		output: output,
		keys:   keys,
		styles: newStyles(renderer, theme),
		logger: logger,
	}, nil
}

// Prompt shows the modal for request and blocks until the operator
// answers or ctx is done. There is no timeout of its own.
func (t *Terminal) Prompt(ctx context.Context, request Request) (Answer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return AnswerCancel, err
	}

	t.logger.Debug("showing permission prompt", "client_id", request.ClientID, "known", request.Known)
	program := tea.NewProgram(
		newModel(request, t.keys, t.styles),
		tea.WithContext(ctx),
		tea.WithInput(t.input),
		tea.WithOutput(t.output),
		tea.WithoutSignalHandler(),
	)
	final, err := program.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return AnswerCancel, ctxErr
	}
	if err != nil {
		return AnswerCancel, fmt.Errorf("running prompt: %w", err)
	}

	result, ok := final.(model)
	if !ok || !result.answered {
		return AnswerCancel, nil
	}
	return result.answer, nil
}
