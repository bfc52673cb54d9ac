// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"sync"
)

// CancelReason records what triggered run-wide cancellation.
type CancelReason int

const (
	// ReasonNone means the run has not been cancelled.
	ReasonNone CancelReason = iota
	// ReasonInterrupt means an interrupt signal was received.
	ReasonInterrupt
	// ReasonFailFast means a permanent failure triggered fail-fast.
	ReasonFailFast
	// ReasonInternal means an engine-internal failure aborted the run.
	ReasonInternal
)

// String implements the Stringer interface for CancelReason.
func (r CancelReason) String() string {
	switch r {
	case ReasonInterrupt:
		return "interrupt"
	case ReasonFailFast:
		return "fail-fast"
	case ReasonInternal:
		return "internal"
	default:
		return "none"
	}
}

// Canceller turns an external trigger (interrupt signal, fail-fast, internal
// failure) into run-wide cancellation. The first request cancels the run
// context, which stops dispatch and starts the graceful termination of every
// running supervisor. A second request closes the force channel, escalating
// straight to forceful kills. All entry points are idempotent.
type Canceller struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	force  chan struct{}
	reason CancelReason
	forced bool
}

// NewCanceller derives the run context from parent.
func NewCanceller(parent context.Context) *Canceller {
	ctx, cancel := context.WithCancel(parent)

	return &Canceller{
		ctx:    ctx,
		cancel: cancel,
		force:  make(chan struct{}),
	}
}

// Context is the run context: done once graceful cancellation is requested.
func (c *Canceller) Context() context.Context {
	return c.ctx
}

// ForceCh is closed when cancellation escalates to forceful termination.
func (c *Canceller) ForceCh() <-chan struct{} {
	return c.force
}

// RequestCancel requests graceful cancellation with the given reason.
// A second call escalates to forceful termination. Further calls are no-ops.
func (c *Canceller) RequestCancel(reason CancelReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reason == ReasonNone {
		c.reason = reason
		c.cancel()

		return
	}

	c.forceLocked()
}

// ForceCancel skips the grace period entirely.
func (c *Canceller) ForceCancel(reason CancelReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reason == ReasonNone {
		c.reason = reason
	}

	c.cancel()
	c.forceLocked()
}

// Cancelled reports whether cancellation has been requested.
func (c *Canceller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reason != ReasonNone
}

// Reason returns what triggered cancellation, or ReasonNone.
func (c *Canceller) Reason() CancelReason {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reason
}

func (c *Canceller) forceLocked() {
	if c.forced {
		return
	}

	c.forced = true
	close(c.force)
}
