// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"sync"
	"time"
)

// Queue holds pending and retry-scheduled work items in dispatch order.
// Dispatch is FIFO among eligible entries; a retried item with a backoff
// delay is not eligible until its deadline passes. The queue also tracks
// in-flight items so that run completion ("sealed, empty, nothing running")
// is a single atomic predicate.
type Queue struct {
	mu       sync.Mutex
	entries  []queueEntry
	sealed   bool // feeder finished; retries may still be enqueued
	stopped  bool // cancellation drained the queue; nothing may be enqueued
	inflight int
	wakeCh   chan struct{}
}

type queueEntry struct {
	item      *WorkItem
	notBefore time.Time
}

// NewQueue creates an empty, unsealed queue.
func NewQueue() *Queue {
	return &Queue{wakeCh: make(chan struct{})}
}

// Enqueue appends an item, immediately eligible for dispatch. It returns
// false if the queue has been stopped by cancellation.
func (q *Queue) Enqueue(item *WorkItem) bool {
	return q.EnqueueAfter(item, 0)
}

// EnqueueAfter appends an item that becomes eligible after the given delay.
// It returns false if the queue has been stopped by cancellation.
func (q *Queue) EnqueueAfter(item *WorkItem, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return false
	}

	entry := queueEntry{item: item}
	if delay > 0 {
		entry.notBefore = time.Now().Add(delay)
	}

	q.entries = append(q.entries, entry)
	q.wakeAllLocked()

	return true
}

// TryDequeue removes and returns the first eligible item. It returns false
// when the queue is empty or every remaining entry is delay-gated. A
// successful dequeue counts as in-flight until Done is called.
func (q *Queue) TryDequeue() (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	for i, entry := range q.entries {
		if !entry.notBefore.IsZero() && entry.notBefore.After(now) {
			continue
		}

		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		q.inflight++

		return entry.item, true
	}

	return nil, false
}

// Done marks one in-flight item as finished with the queue: its terminal
// state has been recorded, or its retry has been re-enqueued.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inflight--
	q.wakeAllLocked()
}

// Seal marks the end of feeder input. Retries may still be enqueued.
func (q *Queue) Seal() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sealed = true
	q.wakeAllLocked()
}

// Drained reports that no work remains: the feeder is done, the queue is
// empty and nothing is in flight.
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.drainedLocked()
}

// CancelAndDrain stops the queue and returns every queued item, eligible or
// not, so the caller can mark them cancelled. Subsequent enqueues fail.
func (q *Queue) CancelAndDrain() []*WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.sealed = true

	items := make([]*WorkItem, 0, len(q.entries))
	for _, entry := range q.entries {
		items = append(items, entry.item)
	}

	q.entries = nil
	q.wakeAllLocked()

	return items
}

// Park blocks until the queue state may have changed: an enqueue, a Done, a
// Seal, a drain, the earliest delay gate expiring, or context cancellation.
// It returns immediately when work is already eligible or the queue is
// drained. Spurious wakeups are expected; callers re-check in a loop.
func (q *Queue) Park(ctx context.Context) error {
	q.mu.Lock()

	if q.hasEligibleLocked() || q.drainedLocked() {
		q.mu.Unlock()
		return nil
	}

	ch := q.wakeCh
	gate, gated := q.nextEligibleLocked()
	q.mu.Unlock()

	var timerCh <-chan time.Time

	if gated {
		timer := time.NewTimer(time.Until(gate))
		defer timer.Stop()

		timerCh = timer.C
	}

	select {
	case <-ch:
		return nil
	case <-timerCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wakeAllLocked releases every parked caller. Callers must hold q.mu.
func (q *Queue) wakeAllLocked() {
	close(q.wakeCh)
	q.wakeCh = make(chan struct{})
}

func (q *Queue) drainedLocked() bool {
	return q.sealed && len(q.entries) == 0 && q.inflight == 0
}

func (q *Queue) hasEligibleLocked() bool {
	now := time.Now()

	for _, entry := range q.entries {
		if entry.notBefore.IsZero() || !entry.notBefore.After(now) {
			return true
		}
	}

	return false
}

// nextEligibleLocked returns the earliest delay-gate deadline among queued
// entries. Callers must hold q.mu.
func (q *Queue) nextEligibleLocked() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)

	for _, entry := range q.entries {
		if entry.notBefore.IsZero() {
			continue
		}

		if !found || entry.notBefore.Before(earliest) {
			earliest = entry.notBefore
			found = true
		}
	}

	return earliest, found
}
