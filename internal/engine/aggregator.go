// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NextState is the pure retry/failure decision: given an attempt's exit
// status, its attempt number, the retry budget and whether the run has been
// cancelled, it returns the item's next state.
func NextState(status ExitStatus, attempt, maxRetries int, runCancelled bool) JobState {
	if status.Success() {
		return StateSucceeded
	}

	if status.Kind == ExitSignal && status.Reason == TermCancelled {
		return StateCancelled
	}

	// Non-zero exit, timeout or spawn failure. Spawn failures stay subject
	// to the retry policy: a later attempt may find a healthier environment.
	if !runCancelled && attempt <= maxRetries {
		return StateRetryScheduled
	}

	return StatePermanentlyFailed
}

// Aggregator is the single source of truth for the run summary and per-item
// states. All mutation happens under one mutex, so concurrent Record calls
// from workers are linearizable.
type Aggregator struct {
	mu         sync.Mutex
	maxRetries int
	states     map[ItemID]JobState
	summary    RunSummary
	pending    int
	running    int
	finalized  bool
}

// NewAggregator creates an aggregator for a run with the given retry budget.
func NewAggregator(maxRetries int) *Aggregator {
	return &Aggregator{
		maxRetries: maxRetries,
		states:     make(map[ItemID]JobState),
		summary: RunSummary{
			RunID:     uuid.New(),
			StartedAt: time.Now(),
		},
	}
}

// RunID returns the unique identifier of this run.
func (a *Aggregator) RunID() uuid.UUID {
	return a.summary.RunID
}

// MarkEnqueued records a newly enqueued item.
func (a *Aggregator) MarkEnqueued(id ItemID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.states[id] = StatePending
	a.summary.Total++
	a.pending++
}

// MarkStarted transitions an item to Running when a worker picks it up.
func (a *Aggregator) MarkStarted(id ItemID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.states[id] = StateRunning
	a.pending--
	a.running++
}

// MarkCancelled transitions a queued (never started, or retry-scheduled)
// item straight to Cancelled.
func (a *Aggregator) MarkCancelled(id ItemID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if state, ok := a.states[id]; !ok || state.Terminal() {
		return
	}

	a.states[id] = StateCancelled
	a.pending--
	a.summary.Cancelled++
}

// Record consumes one execution result, applies the retry decision and
// returns the item's next state for the scheduler to act on.
func (a *Aggregator) Record(res ExecutionResult, runCancelled bool) JobState {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := NextState(res.Status, res.Attempt, a.maxRetries, runCancelled)

	a.states[res.ItemID] = next
	a.running--

	switch next {
	case StateSucceeded:
		a.summary.Succeeded++
	case StatePermanentlyFailed:
		a.summary.PermanentlyFailed++
	case StateCancelled:
		a.summary.Cancelled++
	case StateRetryScheduled:
		// The item goes back to the queue; it counts as pending again.
		a.pending++
	}

	return next
}

// Progress returns a live snapshot of item-state counts.
func (a *Aggregator) Progress() ProgressCounts {
	a.mu.Lock()
	defer a.mu.Unlock()

	return ProgressCounts{
		Total:     a.summary.Total,
		Pending:   a.pending,
		Running:   a.running,
		Succeeded: a.summary.Succeeded,
		Failed:    a.summary.PermanentlyFailed,
		Cancelled: a.summary.Cancelled,
	}
}

// Snapshot returns a copy of the current run summary.
func (a *Aggregator) Snapshot() RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.summary
}

// Finalize freezes and returns the run summary. It is idempotent: repeated
// calls return the summary frozen by the first call.
func (a *Aggregator) Finalize() RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.finalized {
		a.summary.FinishedAt = time.Now()
		a.finalized = true
	}

	return a.summary
}
