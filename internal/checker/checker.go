// Package checker drives a QA job over an ordered set of entries: one worker
// goroutine, a pausable/stoppable lifecycle, per-row checkpointing, and
// callbacks for the front end.
package checker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal"
	"github.com/valpere/perevir/internal/checkpoint"
	"github.com/valpere/perevir/internal/prompts"
)

// State is the job lifecycle state.
//
//	Idle → Running → {Paused ⇄ Running} → {Stopping → Idle | Completed | Error}
//
// Idle is the initial state and the state after a clean stop; Completed and
// Error are terminal for a run (a new Start begins a fresh run).
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Client is the slice of the LLM API the checker needs.
type Client interface {
	Call(ctx context.Context, systemPrompt, userPrompt string) (*internal.AssessmentResult, error)
	CallBatch(ctx context.Context, systemPrompt, userPrompt string, expected int) ([]internal.AssessmentResult, error)
}

// Callbacks are invoked from the worker goroutine. Callers that need a
// particular thread or loop for UI work marshal there themselves.
type Callbacks struct {
	OnProgress    func(processed, total int, item internal.ProcessedItem)
	OnComplete    func(results []internal.ProcessedItem)
	OnError       func(err error)
	OnStateChange func(state State)
	OnLog         func(msg string)
}

// Job is the configuration for one run. It is owned by the checker for the
// duration of the run and must not be mutated while the run is live.
type Job struct {
	Entries         []internal.Entry
	JobID           string
	Prompt          prompts.Template
	Resume          bool
	RequestInterval time.Duration
	// BatchSize > 1 groups pending rows into one batched API call, falling
	// back to per-row calls when the batch response is rejected.
	BatchSize int
}

// Checker runs at most one job at a time.
type Checker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	results []internal.ProcessedItem
	done    chan struct{}

	client      Client
	checkpoints *checkpoint.Store
	callbacks   Callbacks
	log         *zap.SugaredLogger
}

func New(client Client, checkpoints *checkpoint.Store, callbacks Callbacks) *Checker {
	done := make(chan struct{})
	close(done)

	c := &Checker{
		state:       StateIdle,
		done:        done,
		client:      client,
		checkpoints: checkpoints,
		callbacks:   callbacks,
		log:         zap.S(),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current lifecycle state.
func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results returns a snapshot of the results gathered so far, in processing
// order.
func (c *Checker) Results() []internal.ProcessedItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]internal.ProcessedItem(nil), c.results...)
}

// Done returns a channel closed when the current run's worker has exited.
// For an idle checker the channel is already closed.
func (c *Checker) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start launches the worker for a new run. Exactly one job runs at a time:
// while a worker is live (Running, Paused or Stopping) Start is a no-op and
// reports false.
func (c *Checker) Start(job Job) bool {
	c.mu.Lock()
	switch c.state {
	case StateRunning, StatePaused, StateStopping:
		c.mu.Unlock()
		return false
	}
	c.state = StateRunning
	c.results = nil
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.notifyState(StateRunning)

	go c.run(job, done)
	return true
}

// Pause moves Running → Paused; any other state is a no-op. The pause takes
// effect at the next row boundary.
func (c *Checker) Pause() {
	if c.transition(StatePaused, StateRunning) {
		c.logf("check paused")
	}
}

// ResumeRunning moves Paused → Running; any other state is a no-op.
func (c *Checker) ResumeRunning() {
	if c.transition(StateRunning, StatePaused) {
		c.logf("check resumed")
	}
}

// Stop moves Running or Paused → Stopping; the worker persists a checkpoint
// and returns to Idle at the next row boundary.
func (c *Checker) Stop() {
	if c.transition(StateStopping, StateRunning, StatePaused) {
		c.logf("stopping check...")
	}
}

// transition moves to the target state only from one of the listed states.
func (c *Checker) transition(to State, from ...State) bool {
	c.mu.Lock()
	ok := false
	for _, f := range from {
		if c.state == f {
			ok = true
			break
		}
	}
	if ok {
		c.state = to
		c.cond.Broadcast()
	}
	c.mu.Unlock()

	if ok {
		c.notifyState(to)
	}
	return ok
}

// forceState sets the state unconditionally (worker-side transitions).
func (c *Checker) forceState(s State) {
	c.mu.Lock()
	c.state = s
	c.cond.Broadcast()
	c.mu.Unlock()

	c.notifyState(s)
}

func (c *Checker) notifyState(s State) {
	if c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(s)
	}
}

func (c *Checker) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.callbacks.OnLog != nil {
		c.callbacks.OnLog(msg)
	}
}

func (c *Checker) run(job Job, done chan struct{}) {
	defer close(done)

	if err := c.process(job); err != nil {
		// Setup and checkpoint I/O failures abort the run; any checkpoint
		// already on disk stays there for a later resume.
		c.log.Errorw("check failed", "job", job.JobID, "error", err)
		c.logf("check failed: %v", err)
		c.forceState(StateError)
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(err)
		}
	}
}

// process is the worker loop. It returns nil after reaching Idle (stopped)
// or Completed; any returned error is a job-level failure.
func (c *Checker) process(job Job) error {
	if job.Prompt.System == "" || job.Prompt.User == "" {
		return fmt.Errorf("prompt template is empty")
	}

	completed := make(map[int]bool)
	if job.Resume {
		if cp := c.checkpoints.Load(job.JobID); cp != nil {
			for _, row := range cp.CompletedRows {
				completed[row] = true
			}
			c.mu.Lock()
			c.results = append([]internal.ProcessedItem(nil), cp.Results...)
			c.mu.Unlock()
			c.logf("resumed from checkpoint, %d rows already done", len(completed))
		}
	}

	ctx := context.Background()
	total := len(job.Entries)
	processed := len(completed)
	calledBefore := false

	i := 0
	for i < total {
		// Pause and stop only ever take effect here, at a row boundary; an
		// in-flight API call always runs to completion or times out.
		if c.awaitRunnable() == StateStopping {
			c.logf("check stopped, %d/%d rows done", processed, total)
			if err := c.checkpoints.Save(job.JobID, completed, c.Results()); err != nil {
				return fmt.Errorf("failed to save checkpoint on stop: %w", err)
			}
			c.forceState(StateIdle)
			return nil
		}

		entry := job.Entries[i]
		i++
		if completed[entry.Row] {
			continue
		}

		chunk := []internal.Entry{entry}
		if job.BatchSize > 1 {
			for i < total && len(chunk) < job.BatchSize {
				if next := job.Entries[i]; !completed[next.Row] {
					chunk = append(chunk, next)
				}
				i++
			}
		}

		// Proactive spacing between calls; the first call of a run goes out
		// immediately.
		if calledBefore && job.RequestInterval > 0 {
			time.Sleep(job.RequestInterval)
		}
		calledBefore = true

		for _, item := range c.processChunk(ctx, job, chunk) {
			c.mu.Lock()
			c.results = append(c.results, item)
			c.mu.Unlock()
			completed[item.Row] = true
			processed++

			// Synchronous by design: at most one row of work is ever lost
			// on abrupt termination.
			if err := c.checkpoints.Save(job.JobID, completed, c.Results()); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}

			if c.callbacks.OnProgress != nil {
				c.callbacks.OnProgress(processed, total, item)
			}
		}
	}

	c.logf("check complete, %d rows processed", total)
	if err := c.checkpoints.Delete(job.JobID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	results := c.Results()
	c.forceState(StateCompleted)
	if c.callbacks.OnComplete != nil {
		c.callbacks.OnComplete(results)
	}
	return nil
}

// awaitRunnable blocks while the job is paused and reports the state that
// let the worker proceed.
func (c *Checker) awaitRunnable() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == StatePaused {
		c.cond.Wait()
	}
	return c.state
}

// processChunk assesses a group of rows. A chunk of one goes through a
// plain per-row call; larger chunks try one batched call first and fall
// back to per-row calls when the batch response is rejected.
func (c *Checker) processChunk(ctx context.Context, job Job, chunk []internal.Entry) []internal.ProcessedItem {
	if len(chunk) > 1 {
		if items, ok := c.processBatch(ctx, job, chunk); ok {
			return items
		}
		c.logf("batch of %d rows rejected, falling back to per-row calls", len(chunk))
	}

	items := make([]internal.ProcessedItem, 0, len(chunk))
	for idx, entry := range chunk {
		if idx > 0 && job.RequestInterval > 0 {
			time.Sleep(job.RequestInterval)
		}
		items = append(items, c.processRow(ctx, job, entry))
	}
	return items
}

// processRow assesses a single row. A failed call degrades to a score-0
// result carrying the error; a row never takes the job down with it.
func (c *Checker) processRow(ctx context.Context, job Job, entry internal.Entry) internal.ProcessedItem {
	userPrompt := prompts.Resolve(job.Prompt.User, entry.Source, entry.Target)
	c.logf("checking row %d...", entry.Row)

	result, err := c.client.Call(ctx, job.Prompt.System, userPrompt)
	if err != nil {
		c.log.Warnw("row check failed", "row", entry.Row, "error", err)
		c.logf("row %d failed: %v", entry.Row, err)
		result = &internal.AssessmentResult{
			Score:   0,
			Issues:  []string{fmt.Sprintf("api call failed: %v", err)},
			Summary: "api call failed",
		}
	}

	return internal.ProcessedItem{
		Row:    entry.Row,
		Source: entry.Source,
		Target: entry.Target,
		Result: *result,
	}
}

func (c *Checker) processBatch(ctx context.Context, job Job, chunk []internal.Entry) ([]internal.ProcessedItem, bool) {
	userPrompt := prompts.BatchUser(chunk)
	c.logf("checking rows %d-%d as one batch...", chunk[0].Row, chunk[len(chunk)-1].Row)

	results, err := c.client.CallBatch(ctx, job.Prompt.System, userPrompt, len(chunk))
	if err != nil {
		c.log.Warnw("batch call failed", "rows", len(chunk), "error", err)
		return nil, false
	}
	if results == nil {
		return nil, false
	}

	items := make([]internal.ProcessedItem, len(chunk))
	for idx, entry := range chunk {
		items[idx] = internal.ProcessedItem{
			Row:    entry.Row,
			Source: entry.Source,
			Target: entry.Target,
			Result: results[idx],
		}
	}
	return items, true
}
