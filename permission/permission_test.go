// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/gatekeeper/knownapps"
	"github.com/bureau-foundation/gatekeeper/lib/kvstore"
	"github.com/bureau-foundation/gatekeeper/lib/testutil"
	"github.com/bureau-foundation/gatekeeper/prompt"
	"github.com/bureau-foundation/gatekeeper/selection"
)

const testTimeout = 5 * time.Second

// scriptedPrompter hands each request to the test and waits for the
// test to answer it.
type scriptedPrompter struct {
	requests chan prompt.Request
	answers  chan scriptedAnswer
}

type scriptedAnswer struct {
	answer prompt.Answer
	err    error
}

func newScriptedPrompter() *scriptedPrompter {
	return &scriptedPrompter{
		requests: make(chan prompt.Request, 16),
		answers:  make(chan scriptedAnswer, 16),
	}
}

func (p *scriptedPrompter) Prompt(ctx context.Context, request prompt.Request) (prompt.Answer, error) {
	p.requests <- request
	select {
	case reply := <-p.answers:
		return reply.answer, reply.err
	case <-ctx.Done():
		return prompt.AnswerCancel, ctx.Err()
	}
}

func (p *scriptedPrompter) answer(answer prompt.Answer) {
	p.answers <- scriptedAnswer{answer: answer}
}

func (p *scriptedPrompter) requireNoRequest(t *testing.T) {
	t.Helper()
	select {
	case request := <-p.requests:
		t.Fatalf("unexpected prompt for %q", request.ClientID)
	default:
	}
}

// refusingPrompter fails the test if the checker ever prompts.
type refusingPrompter struct{ t *testing.T }

func (p refusingPrompter) Prompt(_ context.Context, request prompt.Request) (prompt.Answer, error) {
	p.t.Errorf("prompted for %q, expected a stored decision", request.ClientID)
	return prompt.AnswerCancel, nil
}

// brokenStore fails reads or writes on demand and counts calls.
type brokenStore struct {
	*kvstore.Memory
	readErr  error
	writeErr error

	mu     sync.Mutex
	reads  int
	writes int
}

func (b *brokenStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	b.reads++
	b.mu.Unlock()
	if b.readErr != nil {
		return nil, false, b.readErr
	}
	return b.Memory.Get(ctx, key)
}

func (b *brokenStore) Set(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	b.writes++
	b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	return b.Memory.Set(ctx, key, value)
}

func (b *brokenStore) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads, b.writes
}

// lockedBuffer is a log sink tests can read while the checker writes.
type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func registry(t *testing.T) *knownapps.Registry {
	t.Helper()
	apps, err := knownapps.New(knownapps.App{ID: "app-A", Name: "Foo"})
	if err != nil {
		t.Fatal(err)
	}
	return apps
}

func newChecker(t *testing.T, config Config) *Checker {
	t.Helper()
	checker, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { checker.Close() })
	return checker
}

func checkAsync(checker *Checker, clientID string) <-chan checkResult {
	result := make(chan checkResult, 1)
	go func() {
		decision, err := checker.Check(context.Background(), clientID)
		result <- checkResult{decision, err}
	}()
	return result
}

type checkResult struct {
	decision Decision
	err      error
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Prompter: prompt.Fixed(prompt.AnswerDeny)}); err == nil {
		t.Error("New without a store should fail")
	}
	if _, err := New(Config{Store: kvstore.NewMemory()}); err == nil {
		t.Error("New without a prompter should fail")
	}
}

func TestConcurrentChecksShareOnePrompt(t *testing.T) {
	store := &brokenStore{Memory: kvstore.NewMemory()}
	prompter := newScriptedPrompter()
	checker := newChecker(t, Config{Store: store, Prompter: prompter})

	var results []<-chan checkResult
	for range 8 {
		results = append(results, checkAsync(checker, "app-A"))
	}

	request := testutil.RequireReceive(t, prompter.requests, testTimeout, "waiting for the prompt")
	if request.ClientID != "app-A" {
		t.Fatalf("prompted for %q", request.ClientID)
	}
	prompter.answer(prompt.AnswerGrant)

	for index, result := range results {
		got := testutil.RequireReceive(t, result, testTimeout, "check %d", index)
		if got.err != nil || !got.decision.Granted || got.decision.Reason != ReasonUserGranted {
			t.Errorf("check %d = %+v, %v", index, got.decision, got.err)
		}
	}

	// A later call is memoized too.
	decision, err := checker.Check(context.Background(), "app-A")
	if err != nil || !decision.Granted {
		t.Fatalf("memoized Check = %+v, %v", decision, err)
	}
	prompter.requireNoRequest(t)
	if reads, _ := store.counts(); reads != 1 {
		t.Errorf("store read %d times, want 1", reads)
	}
}

func TestKnownAppGrantIsPersisted(t *testing.T) {
	store := kvstore.NewMemory()
	prompter := newScriptedPrompter()
	checker, err := New(Config{Store: store, Prompter: prompter, Registry: registry(t)})
	if err != nil {
		t.Fatal(err)
	}

	result := checkAsync(checker, "app-A")
	request := testutil.RequireReceive(t, prompter.requests, testTimeout, "prompt for app-A")
	if !request.Known || request.ClientName != "Foo" {
		t.Errorf("request = %+v, want the known-app variant named Foo", request)
	}
	prompter.answer(prompt.AnswerGrant)

	got := testutil.RequireReceive(t, result, testTimeout, "decision for app-A")
	if got.err != nil || !got.decision.Granted || got.decision.Reason != ReasonUserGranted {
		t.Fatalf("decision = %+v, %v", got.decision, got.err)
	}
	if got.decision.ClientID != "app-A" {
		t.Errorf("decision ClientID = %q", got.decision.ClientID)
	}

	// Close waits for the background write.
	checker.Close()
	blob, found, _ := store.Get(context.Background(), selection.Key)
	if !found || string(blob) != `{"app-A":true}` {
		t.Fatalf("stored selections = %s (found %v)", blob, found)
	}

	// A new process finds the grant without prompting.
	restarted := newChecker(t, Config{Store: store, Prompter: refusingPrompter{t}, Registry: registry(t)})
	decision, err := restarted.Check(context.Background(), "app-A")
	if err != nil || !decision.Granted || decision.Reason != ReasonStoredGrant {
		t.Fatalf("after restart: %+v, %v", decision, err)
	}
}

func TestUnknownAppDenialIsNotPersisted(t *testing.T) {
	store := &brokenStore{Memory: kvstore.NewMemory()}
	prompter := newScriptedPrompter()
	checker, err := New(Config{Store: store, Prompter: prompter, Registry: registry(t)})
	if err != nil {
		t.Fatal(err)
	}

	result := checkAsync(checker, "app-B")
	request := testutil.RequireReceive(t, prompter.requests, testTimeout, "prompt for app-B")
	if request.Known || request.ClientName != "" {
		t.Errorf("request = %+v, want the unknown-app variant", request)
	}
	prompter.answer(prompt.AnswerDeny)

	got := testutil.RequireReceive(t, result, testTimeout, "decision for app-B")
	if got.err != nil || got.decision.Granted || got.decision.Reason != ReasonUserDenied {
		t.Fatalf("decision = %+v, %v", got.decision, got.err)
	}

	// Same process: memoized, no second prompt.
	decision, err := checker.Check(context.Background(), "app-B")
	if err != nil || decision.Granted || decision.Reason != ReasonUserDenied {
		t.Fatalf("second Check = %+v, %v", decision, err)
	}
	prompter.requireNoRequest(t)

	checker.Close()
	if _, writes := store.counts(); writes != 0 {
		t.Errorf("denial caused %d store writes", writes)
	}

	// New process: prompts again.
	restarted := newChecker(t, Config{Store: store, Prompter: prompter, Registry: registry(t)})
	again := checkAsync(restarted, "app-B")
	testutil.RequireReceive(t, prompter.requests, testTimeout, "re-prompt after restart")
	prompter.answer(prompt.AnswerCancel)
	got = testutil.RequireReceive(t, again, testTimeout, "decision after restart")
	if got.decision.Granted || got.decision.Reason != ReasonUserCancelled {
		t.Errorf("after restart = %+v, want cancelled", got.decision)
	}
}

func TestPromptErrorCountsAsCancelled(t *testing.T) {
	prompter := newScriptedPrompter()
	var logs lockedBuffer
	checker := newChecker(t, Config{
		Store:    kvstore.NewMemory(),
		Prompter: prompter,
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	})

	result := checkAsync(checker, "app-C")
	testutil.RequireReceive(t, prompter.requests, testTimeout, "prompt")
	prompter.answers <- scriptedAnswer{err: errors.New("terminal went away")}

	got := testutil.RequireReceive(t, result, testTimeout, "decision")
	if got.err != nil || got.decision.Granted || got.decision.Reason != ReasonUserCancelled {
		t.Fatalf("decision = %+v, %v", got.decision, got.err)
	}
	output := logs.String()
	if !strings.Contains(output, "terminal went away") {
		t.Errorf("prompt error not logged:\n%s", output)
	}
	// The decision is logged before waiters see it.
	if !strings.Contains(output, "permission decided") {
		t.Errorf("decision not logged by the time Check returned:\n%s", output)
	}
}

func TestStorageReadErrorFailsCheck(t *testing.T) {
	store := &brokenStore{Memory: kvstore.NewMemory(), readErr: errors.New("permission denied")}
	checker := newChecker(t, Config{Store: store, Prompter: refusingPrompter{t}})

	decision, err := checker.Check(context.Background(), "app-A")
	if !errors.Is(err, ErrStorageRead) {
		t.Fatalf("Check = %+v, %v; want ErrStorageRead", decision, err)
	}
	if decision.Granted {
		t.Error("storage failure granted access")
	}

	// Another client shares the one failed load.
	if _, err := checker.Check(context.Background(), "app-B"); !errors.Is(err, ErrStorageRead) {
		t.Errorf("second client = %v, want ErrStorageRead", err)
	}
	if reads, _ := store.counts(); reads != 1 {
		t.Errorf("store read %d times, want 1", reads)
	}
}

func TestStorageWriteErrorKeepsGrant(t *testing.T) {
	store := &brokenStore{Memory: kvstore.NewMemory(), writeErr: errors.New("disk full")}
	var logs lockedBuffer
	checker, err := New(Config{
		Store:    store,
		Prompter: prompt.Fixed(prompt.AnswerGrant),
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}

	decision, err := checker.Check(context.Background(), "app-A")
	if err != nil || !decision.Granted {
		t.Fatalf("Check = %+v, %v", decision, err)
	}
	checker.Close()

	if _, writes := store.counts(); writes != 1 {
		t.Errorf("store written %d times, want 1", writes)
	}
	output := logs.String()
	if !strings.Contains(output, ErrStorageWrite.Error()) || !strings.Contains(output, "disk full") {
		t.Errorf("write failure not logged:\n%s", output)
	}
}

func TestStoredDenialFiresHook(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	store.Set(ctx, selection.Key, []byte(`{"app-X": false, "app-A": true}`))

	var rejected []string
	var mu sync.Mutex
	checker := newChecker(t, Config{
		Store:    store,
		Prompter: refusingPrompter{t},
		OnStoredRejection: func(clientID string) {
			mu.Lock()
			rejected = append(rejected, clientID)
			mu.Unlock()
		},
	})

	for range 2 {
		decision, err := checker.Check(ctx, "app-X")
		if err != nil || decision.Granted || decision.Reason != ReasonStoredDenial {
			t.Fatalf("Check(app-X) = %+v, %v", decision, err)
		}
	}
	decision, _ := checker.Check(ctx, "app-A")
	if !decision.Granted || decision.Reason != ReasonStoredGrant {
		t.Errorf("Check(app-A) = %+v", decision)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(rejected) != 1 || rejected[0] != "app-X" {
		t.Errorf("hook calls = %v, want exactly [app-X]", rejected)
	}
}

func TestNullEntryIsPromptedNotDenied(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	store.Set(ctx, selection.Key, []byte(`{"app-A": true, "app-N": null}`))

	var rejected []string
	var mu sync.Mutex
	prompter := newScriptedPrompter()
	checker := newChecker(t, Config{
		Store:    store,
		Prompter: prompter,
		OnStoredRejection: func(clientID string) {
			mu.Lock()
			rejected = append(rejected, clientID)
			mu.Unlock()
		},
	})

	result := checkAsync(checker, "app-N")
	request := testutil.RequireReceive(t, prompter.requests, testTimeout, "prompt for app-N")
	if request.ClientID != "app-N" {
		t.Fatalf("prompted for %q, want app-N", request.ClientID)
	}
	prompter.answer(prompt.AnswerDeny)

	got := testutil.RequireReceive(t, result, testTimeout, "decision")
	if got.err != nil || got.decision.Granted || got.decision.Reason != ReasonUserDenied {
		t.Fatalf("decision = %+v, %v; want user denial", got.decision, got.err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(rejected) != 0 {
		t.Errorf("hook fired for %v on a dropped entry", rejected)
	}
}

func TestGrantsAccumulateInStore(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	store.Set(ctx, selection.Key, []byte(`{"existing": true, "corrupt": "yes"}`))

	checker, err := New(Config{Store: store, Prompter: prompt.Fixed(prompt.AnswerGrant)})
	if err != nil {
		t.Fatal(err)
	}
	for _, clientID := range []string{"one", "two", "three"} {
		if decision, err := checker.Check(ctx, clientID); err != nil || !decision.Granted {
			t.Fatalf("Check(%s) = %+v, %v", clientID, decision, err)
		}
	}
	checker.Close()

	stored, err := selection.Load(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, clientID := range []string{"existing", "one", "two", "three"} {
		if !stored[clientID] {
			t.Errorf("%s missing from stored selections %v", clientID, stored)
		}
	}
	if _, present := stored["corrupt"]; present {
		t.Error("corrupt entry written back")
	}
}

func TestSelectionsIncludesGrants(t *testing.T) {
	ctx := context.Background()
	checker := newChecker(t, Config{Store: kvstore.NewMemory(), Prompter: prompt.Fixed(prompt.AnswerGrant)})
	checker.Check(ctx, "app-A")

	selections, err := checker.Selections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !selections["app-A"] {
		t.Errorf("Selections() = %v, want app-A granted", selections)
	}
}

func TestCloseAbandonsPendingPrompt(t *testing.T) {
	prompter := newScriptedPrompter()
	checker, err := New(Config{Store: kvstore.NewMemory(), Prompter: prompter})
	if err != nil {
		t.Fatal(err)
	}

	result := checkAsync(checker, "app-A")
	testutil.RequireReceive(t, prompter.requests, testTimeout, "prompt")
	checker.Close()

	got := testutil.RequireReceive(t, result, testTimeout, "abandoned check")
	if !errors.Is(got.err, ErrClosed) {
		t.Fatalf("abandoned check = %+v, %v; want ErrClosed", got.decision, got.err)
	}
	if _, err := checker.Check(context.Background(), "app-B"); !errors.Is(err, ErrClosed) {
		t.Errorf("Check after Close = %v, want ErrClosed", err)
	}
}

func TestCallerContextDoesNotCancelDecision(t *testing.T) {
	prompter := newScriptedPrompter()
	checker := newChecker(t, Config{Store: kvstore.NewMemory(), Prompter: prompter})

	ctx, cancel := context.WithCancel(context.Background())
	early := make(chan error, 1)
	go func() {
		_, err := checker.Check(ctx, "app-A")
		early <- err
	}()
	testutil.RequireReceive(t, prompter.requests, testTimeout, "prompt")
	cancel()
	if err := testutil.RequireReceive(t, early, testTimeout, "caller gives up"); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v", err)
	}

	// The prompt is still open; answering it resolves the shared check.
	prompter.answer(prompt.AnswerGrant)
	decision, err := checker.Check(context.Background(), "app-A")
	if err != nil || !decision.Granted {
		t.Fatalf("Check after caller cancel = %+v, %v", decision, err)
	}
	prompter.requireNoRequest(t)
}

func TestReasonStrings(t *testing.T) {
	for reason, want := range map[Reason]string{
		ReasonStoredGrant:   "stored grant",
		ReasonUserGranted:   "granted by user",
		ReasonStoredDenial:  "stored denial",
		ReasonUserDenied:    "denied by user",
		ReasonUserCancelled: "prompt dismissed",
		Reason(0):           "Reason(0)",
	} {
		if reason.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(reason), reason.String(), want)
		}
	}
	decision := Decision{ClientID: "app-A", Granted: true, Reason: ReasonUserGranted}
	if decision.String() != "app-A granted (granted by user)" {
		t.Errorf("Decision.String() = %q", decision.String())
	}
}
