// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemID is the stable sequence number assigned to a work item at enqueue.
type ItemID int64

// WorkItem is one unit of input paired with its expanded command line and
// attempt count. All fields except Attempt are immutable after enqueue.
type WorkItem struct {
	ID          ItemID
	Input       string // The raw input item
	Label       string // Display label derived from the input
	CommandLine string // The concrete command line after template expansion
	Attempt     int    // 1-based; incremented on retry
	StdinData   string // Data piped to the child's stdin (stdin input mode)
	StdinPath   string // File piped to the child's stdin (directory sources)
}

// Retry returns a copy of the item with the attempt counter incremented.
func (w *WorkItem) Retry() *WorkItem {
	next := *w
	next.Attempt++

	return &next
}

// JobState is the lifecycle state of a work item.
type JobState int

const (
	// StatePending means the item is queued and eligible for dispatch.
	StatePending JobState = iota
	// StateRunning means a supervisor is executing the item.
	StateRunning
	// StateSucceeded is the terminal success state.
	StateSucceeded
	// StateFailed means the last attempt failed; the retry decision is pending.
	StateFailed
	// StateRetryScheduled means a failed item has been re-queued.
	StateRetryScheduled
	// StatePermanentlyFailed is the terminal failure state.
	StatePermanentlyFailed
	// StateCancelled is the terminal cancellation state.
	StateCancelled
)

// String implements the Stringer interface for JobState.
func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateRetryScheduled:
		return "retry-scheduled"
	case StatePermanentlyFailed:
		return "permanently-failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of the three terminal states.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StatePermanentlyFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ExitKind classifies how an attempt's child process ended.
type ExitKind int

const (
	// ExitSuccess means the process exited zero.
	ExitSuccess ExitKind = iota
	// ExitCode means the process exited non-zero, or could not be spawned.
	ExitCode
	// ExitSignal means the supervisor terminated the process.
	ExitSignal
)

// TermReason records why the supervisor terminated a process.
type TermReason int

const (
	// TermNone means the supervisor did not terminate the process.
	TermNone TermReason = iota
	// TermTimeout means the per-item timeout elapsed.
	TermTimeout
	// TermCancelled means run-wide cancellation was requested.
	TermCancelled
)

// String implements the Stringer interface for TermReason.
func (r TermReason) String() string {
	switch r {
	case TermTimeout:
		return "timeout"
	case TermCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// SpawnErrorCode is the exit code reported when the child process could not
// be started at all.
const SpawnErrorCode = -1

// ExitStatus is the outcome of one attempt's child process.
type ExitStatus struct {
	Kind        ExitKind
	Code        int        // For ExitCode: the process exit code
	Reason      TermReason // For ExitSignal: why the supervisor killed it
	SpawnFailed bool       // True when the process never started
}

// Success reports whether the attempt succeeded.
func (s ExitStatus) Success() bool {
	return s.Kind == ExitSuccess
}

// String implements the Stringer interface for ExitStatus.
func (s ExitStatus) String() string {
	switch s.Kind {
	case ExitSuccess:
		return "success"
	case ExitSignal:
		return fmt.Sprintf("signal(%s)", s.Reason)
	default:
		if s.SpawnFailed {
			return "code(spawn-error)"
		}

		return fmt.Sprintf("code(%d)", s.Code)
	}
}

// ExecutionResult is produced exactly once per attempt by the supervisor and
// consumed exactly once by the aggregator.
type ExecutionResult struct {
	ItemID     ItemID
	Attempt    int
	Status     ExitStatus
	Err        error // Spawn or I/O error detail; nil for clean exits
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// RunSummary is the final accounting of a run. It is mutated only by the
// aggregator and snapshotted for reporting.
type RunSummary struct {
	RunID             uuid.UUID
	Total             int
	Succeeded         int
	PermanentlyFailed int
	Cancelled         int
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Elapsed returns the wall-clock duration of the run.
func (s RunSummary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}

	return s.FinishedAt.Sub(s.StartedAt)
}

// ProgressCounts is a live snapshot of item states for the progress line.
type ProgressCounts struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int
}
