package checker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valpere/perevir/internal"
	"github.com/valpere/perevir/internal/checkpoint"
	"github.com/valpere/perevir/internal/prompts"
)

// fakeClient satisfies Client with pluggable behavior.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	batches int
	callFn  func(user string) (*internal.AssessmentResult, error)
	batchFn func(user string, expected int) ([]internal.AssessmentResult, error)
}

func (f *fakeClient) Call(_ context.Context, _, user string) (*internal.AssessmentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.callFn != nil {
		return f.callFn(user)
	}
	return &internal.AssessmentResult{Score: 8, Issues: []string{}, Summary: "ok"}, nil
}

func (f *fakeClient) CallBatch(_ context.Context, _, user string, expected int) ([]internal.AssessmentResult, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	if f.batchFn != nil {
		return f.batchFn(user, expected)
	}
	return nil, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder captures callback invocations for later assertions.
type recorder struct {
	mu       sync.Mutex
	progress []int
	states   []State
	complete [][]internal.ProcessedItem
	errs     []error
	onFirst  func() // invoked from the first progress callback
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(processed, total int, item internal.ProcessedItem) {
			r.mu.Lock()
			r.progress = append(r.progress, processed)
			first := len(r.progress) == 1
			r.mu.Unlock()
			if first && r.onFirst != nil {
				r.onFirst()
			}
		},
		OnComplete: func(results []internal.ProcessedItem) {
			r.mu.Lock()
			r.complete = append(r.complete, results)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnStateChange: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) progressCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress)
}

func testEntries(rows ...int) []internal.Entry {
	entries := make([]internal.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, internal.Entry{
			Row:    row,
			Source: fmt.Sprintf("source %d", row),
			Target: fmt.Sprintf("target %d", row),
		})
	}
	return entries
}

func testPrompt() prompts.Template {
	tpl, ok := prompts.Get("comprehensive")
	if !ok {
		panic("builtin prompt missing")
	}
	return tpl
}

func newTestChecker(t *testing.T, client Client, rec *recorder) (*Checker, *checkpoint.Store) {
	t.Helper()
	store, err := checkpoint.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create checkpoint store: %v", err)
	}
	return New(client, store, rec.callbacks()), store
}

func waitDone(t *testing.T, c *Checker) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish in time")
	}
}

func TestChecker_CompletesAndDeletesCheckpoint(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	c, store := newTestChecker(t, client, rec)

	if !c.Start(Job{Entries: testEntries(2, 3, 4), JobID: "job", Prompt: testPrompt()}) {
		t.Fatal("Start refused")
	}
	waitDone(t, c)

	if got := c.State(); got != StateCompleted {
		t.Fatalf("state = %v, want %v", got, StateCompleted)
	}
	if client.callCount() != 3 {
		t.Errorf("expected 3 calls, got %d", client.callCount())
	}
	if rec.progressCount() != 3 {
		t.Errorf("expected 3 progress callbacks, got %d", rec.progressCount())
	}
	if len(rec.complete) != 1 || len(rec.complete[0]) != 3 {
		t.Errorf("expected one completion callback with 3 results, got %+v", rec.complete)
	}
	if cp := store.Load("job"); cp != nil {
		t.Error("expected checkpoint deleted after completion")
	}
}

func TestChecker_ResumeSkipsCompletedRows(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	c, store := newTestChecker(t, client, rec)

	prior := []internal.ProcessedItem{
		{Row: 2, Source: "source 2", Target: "target 2", Result: internal.AssessmentResult{Score: 9, Summary: "done"}},
		{Row: 3, Source: "source 3", Target: "target 3", Result: internal.AssessmentResult{Score: 7, Summary: "done"}},
	}
	if err := store.Save("job", map[int]bool{2: true, 3: true}, prior); err != nil {
		t.Fatal(err)
	}

	c.Start(Job{Entries: testEntries(2, 3, 4), JobID: "job", Prompt: testPrompt(), Resume: true})
	waitDone(t, c)

	// Exactly one remote call: for row 4.
	if client.callCount() != 1 {
		t.Errorf("expected 1 call on resume, got %d", client.callCount())
	}
	if len(rec.complete) != 1 || len(rec.complete[0]) != 3 {
		t.Fatalf("expected 3 results total, got %+v", rec.complete)
	}
	if rec.complete[0][2].Row != 4 {
		t.Errorf("expected row 4 processed last, got %d", rec.complete[0][2].Row)
	}
	if c.State() != StateCompleted {
		t.Errorf("state = %v, want %v", c.State(), StateCompleted)
	}
}

func TestChecker_StartWhileRunningNoOp(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{
		callFn: func(string) (*internal.AssessmentResult, error) {
			<-release
			return &internal.AssessmentResult{Score: 8, Summary: "ok"}, nil
		},
	}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	if !c.Start(Job{Entries: testEntries(2), JobID: "job", Prompt: testPrompt()}) {
		t.Fatal("first Start refused")
	}
	if c.Start(Job{Entries: testEntries(2, 3), JobID: "other", Prompt: testPrompt()}) {
		t.Error("second Start must be a no-op while running")
	}
	if c.State() != StateRunning {
		t.Errorf("state = %v, want %v", c.State(), StateRunning)
	}

	close(release)
	waitDone(t, c)

	// Only the first job's single row ran.
	if client.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", client.callCount())
	}
}

func TestChecker_RowFailureIsIsolated(t *testing.T) {
	client := &fakeClient{
		callFn: func(user string) (*internal.AssessmentResult, error) {
			if strings.Contains(user, "source 2") {
				return nil, fmt.Errorf("api call failed after 3 attempts: HTTP 502")
			}
			return &internal.AssessmentResult{Score: 8, Summary: "ok"}, nil
		},
	}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2, 3), JobID: "job", Prompt: testPrompt()})
	waitDone(t, c)

	if c.State() != StateCompleted {
		t.Fatalf("a failed row must not abort the job, state = %v", c.State())
	}
	results := rec.complete[0]
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Result.Score != 0 {
		t.Errorf("expected degraded score 0 for failed row, got %d", results[0].Result.Score)
	}
	if len(results[0].Result.Issues) == 0 || !strings.Contains(results[0].Result.Issues[0], "api call failed") {
		t.Errorf("expected error carried in issues, got %v", results[0].Result.Issues)
	}
	if results[1].Result.Score != 8 {
		t.Errorf("expected next row unaffected, got score %d", results[1].Result.Score)
	}
}

func TestChecker_StopPersistsCheckpointAndGoesIdle(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	var c *Checker
	rec.onFirst = func() { c.Stop() }
	c, store := newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2, 3, 4), JobID: "job", Prompt: testPrompt()})
	waitDone(t, c)

	if c.State() != StateIdle {
		t.Fatalf("state after stop = %v, want %v", c.State(), StateIdle)
	}
	if len(rec.complete) != 0 {
		t.Error("stopped run must not emit a completion callback")
	}

	cp := store.Load("job")
	if cp == nil {
		t.Fatal("expected checkpoint left on disk after stop")
	}
	if len(cp.CompletedRows) != len(cp.Results) {
		t.Errorf("checkpoint inconsistent: %d rows vs %d results", len(cp.CompletedRows), len(cp.Results))
	}
	if len(cp.CompletedRows) == 0 {
		t.Error("expected at least the first row in the checkpoint")
	}
}

func TestChecker_PauseAndResume(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	var c *Checker
	rec.onFirst = func() { c.Pause() }
	c, _ = newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2, 3, 4), JobID: "job", Prompt: testPrompt()})

	// The pause lands at the next row boundary; the worker must then hold.
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StatePaused && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != StatePaused {
		t.Fatalf("state = %v, want %v", c.State(), StatePaused)
	}

	time.Sleep(50 * time.Millisecond)
	if got := rec.progressCount(); got != 1 {
		t.Errorf("worker advanced while paused: %d rows processed", got)
	}

	c.ResumeRunning()
	waitDone(t, c)

	if c.State() != StateCompleted {
		t.Errorf("state = %v, want %v", c.State(), StateCompleted)
	}
	if rec.progressCount() != 3 {
		t.Errorf("expected all 3 rows processed after resume, got %d", rec.progressCount())
	}
}

func TestChecker_PauseOnlyFromRunning(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	c.Pause()
	if c.State() != StateIdle {
		t.Errorf("Pause from Idle must be a no-op, state = %v", c.State())
	}
	c.ResumeRunning()
	if c.State() != StateIdle {
		t.Errorf("ResumeRunning from Idle must be a no-op, state = %v", c.State())
	}
	c.Stop()
	if c.State() != StateIdle {
		t.Errorf("Stop from Idle must be a no-op, state = %v", c.State())
	}
}

func TestChecker_BatchFallbackToPerRow(t *testing.T) {
	client := &fakeClient{
		batchFn: func(_ string, _ int) ([]internal.AssessmentResult, error) {
			return nil, nil // shape rejected: caller must fall back
		},
	}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2, 3, 4, 5, 6), JobID: "job", Prompt: testPrompt(), BatchSize: 5})
	waitDone(t, c)

	if client.batches != 1 {
		t.Errorf("expected 1 batch attempt, got %d", client.batches)
	}
	if client.callCount() != 5 {
		t.Errorf("expected 5 per-row fallback calls, got %d", client.callCount())
	}
	if c.State() != StateCompleted {
		t.Errorf("state = %v, want %v", c.State(), StateCompleted)
	}
}

func TestChecker_BatchSuccess(t *testing.T) {
	client := &fakeClient{
		batchFn: func(_ string, expected int) ([]internal.AssessmentResult, error) {
			results := make([]internal.AssessmentResult, expected)
			for i := range results {
				results[i] = internal.AssessmentResult{Score: 9 - i, Summary: fmt.Sprintf("item %d", i+1)}
			}
			return results, nil
		},
	}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2, 3, 4), JobID: "job", Prompt: testPrompt(), BatchSize: 3})
	waitDone(t, c)

	if client.callCount() != 0 {
		t.Errorf("expected no per-row calls, got %d", client.callCount())
	}
	results := rec.complete[0]
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Batch results map back onto rows in order.
	if results[0].Row != 2 || results[0].Result.Score != 9 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[2].Row != 4 || results[2].Result.Score != 7 {
		t.Errorf("unexpected last result: %+v", results[2])
	}
}

func TestChecker_EmptyPromptIsFatal(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2), JobID: "job"})
	waitDone(t, c)

	if c.State() != StateError {
		t.Fatalf("state = %v, want %v", c.State(), StateError)
	}
	if len(rec.errs) != 1 {
		t.Fatalf("expected one error callback, got %d", len(rec.errs))
	}
}

func TestChecker_CheckpointWriteFailureIsFatal(t *testing.T) {
	dir := t.TempDir() + "/checkpoints"
	store, err := checkpoint.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	// Pull the directory out from under the store: the first per-row save
	// fails, which must abort the run.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{}
	rec := &recorder{}
	c := New(client, store, rec.callbacks())

	c.Start(Job{Entries: testEntries(2), JobID: "job", Prompt: testPrompt()})
	waitDone(t, c)

	if c.State() != StateError {
		t.Fatalf("state = %v, want %v", c.State(), StateError)
	}
	if len(rec.errs) != 1 || !strings.Contains(rec.errs[0].Error(), "checkpoint") {
		t.Errorf("expected checkpoint error reported, got %v", rec.errs)
	}
}

func TestChecker_StartAgainAfterCompletion(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	c, _ := newTestChecker(t, client, rec)

	c.Start(Job{Entries: testEntries(2), JobID: "job", Prompt: testPrompt()})
	waitDone(t, c)
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want %v", c.State(), StateCompleted)
	}

	// Completed is terminal for the run, not for the checker.
	if !c.Start(Job{Entries: testEntries(5), JobID: "job2", Prompt: testPrompt()}) {
		t.Fatal("Start after completion refused")
	}
	waitDone(t, c)
	if client.callCount() != 2 {
		t.Errorf("expected 2 calls across both runs, got %d", client.callCount())
	}
}
