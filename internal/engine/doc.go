// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package engine is the parallel execution core: a FIFO work queue with
// delay-gated retries, a pool of C workers, a per-attempt process supervisor
// with timeout and termination escalation, a single-writer result aggregator
// and an idempotent cancellation controller. Every item the queue accepts
// reaches exactly one terminal state, and the final summary counts always sum
// to the number of items enqueued.
package engine
