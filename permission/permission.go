// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/gatekeeper/knownapps"
	"github.com/bureau-foundation/gatekeeper/prompt"
	"github.com/bureau-foundation/gatekeeper/selection"
)

var (
	// ErrStorageRead fails a check when the stored selections could
	// not be read.
	ErrStorageRead = errors.New("reading stored selections failed")

	// ErrStorageWrite is logged when a grant could not be persisted.
	// It never reaches a caller of Check.
	ErrStorageWrite = errors.New("writing stored selections failed")

	// ErrClosed is returned by Check after Close, and by checks that
	// were still waiting on the operator when Close was called.
	ErrClosed = errors.New("permission checker closed")
)

// Prompter asks the operator about one client.
type Prompter interface {
	Prompt(ctx context.Context, request prompt.Request) (prompt.Answer, error)
}

// Registry looks up known client applications.
type Registry interface {
	Lookup(clientID string) (knownapps.App, bool)
}

// Reason says how a decision was reached.
type Reason int

const (
	ReasonStoredGrant Reason = iota + 1
	ReasonUserGranted
	ReasonStoredDenial
	ReasonUserDenied
	ReasonUserCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonStoredGrant:
		return "stored grant"
	case ReasonUserGranted:
		return "granted by user"
	case ReasonStoredDenial:
		return "stored denial"
	case ReasonUserDenied:
		return "denied by user"
	case ReasonUserCancelled:
		return "prompt dismissed"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Decision is the outcome of a check.
type Decision struct {
	ClientID string
	Granted  bool
	Reason   Reason
}

func (d Decision) String() string {
	verdict := "denied"
	if d.Granted {
		verdict = "granted"
	}
	return fmt.Sprintf("%s %s (%s)", d.ClientID, verdict, d.Reason)
}

// Config holds a Checker's collaborators. Store and Prompter are
// required.
type Config struct {
	Store    selection.Store
	Prompter Prompter

	// Registry may be nil, in which case every client is unknown.
	Registry Registry

	// OnStoredRejection, if set, is called when a check resolves from
	// a stored false. It runs on the check's goroutine.
	OnStoredRejection func(clientID string)

	Logger *slog.Logger
}

// Checker is the per-process permission state. Create one with New
// and release it with Close.
type Checker struct {
	store             selection.Store
	prompter          Prompter
	registry          Registry
	onStoredRejection func(string)
	logger            *slog.Logger

	// ctx bounds prompts and the selection load. It is independent
	// of any one caller: a caller that gives up does not cancel the
	// shared decision other callers are waiting on.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[string]*pendingCheck

	// selections is the in-memory map; it is read and updated under
	// mu once loaded is closed.
	loadOnce   sync.Once
	loaded     chan struct{}
	selections map[string]bool
	loadErr    error

	// writeMu orders durable writes: the snapshot is taken while it
	// is held, so a later write always carries every earlier grant.
	writeMu sync.Mutex
	writes  sync.WaitGroup
}

type pendingCheck struct {
	done     chan struct{}
	decision Decision
	err      error
}

// New creates a Checker. Nothing is read from the store until the
// first Check.
func New(config Config) (*Checker, error) {
	if config.Store == nil {
		return nil, errors.New("permission: Store is required")
	}
	if config.Prompter == nil {
		return nil, errors.New("permission: Prompter is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Checker{
		store:             config.Store,
		prompter:          config.Prompter,
		registry:          config.Registry,
		onStoredRejection: config.OnStoredRejection,
		logger:            logger,
		ctx:               ctx,
		cancel:            cancel,
		pending:           make(map[string]*pendingCheck),
		loaded:            make(chan struct{}),
	}, nil
}

// Check returns the decision for clientID, starting it if no check for
// that ID exists yet. It returns early with ctx's error if ctx ends
// first; the decision still completes and later calls observe it.
//
// The error is ErrStorageRead, ErrClosed or a context error. A denial
// is not an error: inspect Decision.Granted and Decision.Reason.
func (c *Checker) Check(ctx context.Context, clientID string) (Decision, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Decision{ClientID: clientID}, ErrClosed
	}
	check, exists := c.pending[clientID]
	if !exists {
		check = &pendingCheck{done: make(chan struct{})}
		c.pending[clientID] = check
		go c.resolve(clientID, check)
	}
	c.mu.Unlock()

	select {
	case <-check.done:
		return check.decision, check.err
	case <-ctx.Done():
		return Decision{ClientID: clientID}, ctx.Err()
	}
}

// Close abandons checks still waiting on the operator (they fail with
// ErrClosed) and waits for pending grant writes to finish.
func (c *Checker) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.writes.Wait()
	return nil
}

// Selections returns a copy of the in-memory selection map, loading it
// if no check has yet. Grants made this process are included.
func (c *Checker) Selections(ctx context.Context) (map[string]bool, error) {
	if err := c.awaitSelections(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]bool, len(c.selections))
	for clientID, granted := range c.selections {
		snapshot[clientID] = granted
	}
	return snapshot, nil
}

// resolve runs the pipeline for one client and publishes the result.
func (c *Checker) resolve(clientID string, check *pendingCheck) {
	decision, err := c.decide(clientID)
	decision.ClientID = clientID
	check.decision, check.err = decision, err

	if err != nil {
		c.logger.Error("permission check failed", "client_id", clientID, "error", err)
	} else {
		c.logger.Info("permission decided",
			"client_id", clientID,
			"granted", decision.Granted,
			"reason", decision.Reason.String(),
		)
	}
	close(check.done)
}

func (c *Checker) decide(clientID string) (Decision, error) {
	if err := c.awaitSelections(c.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return Decision{}, ErrClosed
		}
		return Decision{}, err
	}

	c.mu.Lock()
	stored, found := c.selections[clientID]
	c.mu.Unlock()

	if found {
		if stored {
			return Decision{Granted: true, Reason: ReasonStoredGrant}, nil
		}
		if c.onStoredRejection != nil {
			c.onStoredRejection(clientID)
		}
		return Decision{Reason: ReasonStoredDenial}, nil
	}

	return c.ask(clientID)
}

// ask runs the interactive path.
func (c *Checker) ask(clientID string) (Decision, error) {
	request := prompt.Request{ClientID: clientID}
	if c.registry != nil {
		if app, known := c.registry.Lookup(clientID); known {
			request.Known = true
			request.ClientName = app.Name
		}
	}

	answer, err := c.prompter.Prompt(c.ctx, request)
	if err != nil {
		if c.ctx.Err() != nil {
			return Decision{}, ErrClosed
		}
		c.logger.Warn("permission prompt failed, treating as dismissed",
			"client_id", clientID,
			"error", err,
		)
		return Decision{Reason: ReasonUserCancelled}, nil
	}

	switch answer {
	case prompt.AnswerGrant:
		c.recordGrant(clientID)
		return Decision{Granted: true, Reason: ReasonUserGranted}, nil
	case prompt.AnswerDeny:
		return Decision{Reason: ReasonUserDenied}, nil
	default:
		return Decision{Reason: ReasonUserCancelled}, nil
	}
}

// awaitSelections starts the one-time load if needed and waits for it.
func (c *Checker) awaitSelections(ctx context.Context) error {
	c.loadOnce.Do(func() { go c.loadSelections() })
	select {
	case <-c.loaded:
		return c.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Checker) loadSelections() {
	selections, err := selection.Load(c.ctx, c.store, c.logger)
	c.mu.Lock()
	if err != nil {
		c.loadErr = fmt.Errorf("%w: %v", ErrStorageRead, err)
	} else {
		c.selections = selections
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("loading stored selections failed", "error", err)
	} else {
		c.logger.Debug("stored selections loaded", "entries", len(selections))
	}
	close(c.loaded)
}

// recordGrant updates the in-memory map immediately and persists the
// whole map in the background.
func (c *Checker) recordGrant(clientID string) {
	c.mu.Lock()
	c.selections[clientID] = true
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("checker closed before grant was persisted", "client_id", clientID)
		return
	}
	c.writes.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.writes.Done()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		c.mu.Lock()
		snapshot := make(map[string]bool, len(c.selections))
		for id, granted := range c.selections {
			snapshot[id] = granted
		}
		c.mu.Unlock()

		// Close waits for this write, so it outlives the cancellation
		// that abandons prompts.
		ctx := context.WithoutCancel(c.ctx)
		if err := selection.Save(ctx, c.store, snapshot); err != nil {
			c.logger.Error("persisting grant failed",
				"client_id", clientID,
				"error", fmt.Errorf("%w: %v", ErrStorageWrite, err),
			)
			return
		}
		c.logger.Debug("grant persisted", "client_id", clientID)
	}()
}
