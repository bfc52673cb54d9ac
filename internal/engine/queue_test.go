// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueueDispatchOrderIsFIFO(t *testing.T) {
	q := NewQueue()

	for i := 1; i <= 3; i++ {
		ok := q.Enqueue(&WorkItem{ID: ItemID(i)})
		require.True(t, ok, "enqueue should succeed on a live queue")
	}

	for i := 1; i <= 3; i++ {
		item, ok := q.TryDequeue()
		require.True(t, ok, "expected an eligible item")
		assert.Equal(t, ItemID(i), item.ID, "items should dispatch in enqueue order")
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "queue should be empty")
}

func TestQueueDelayGatesRetries(t *testing.T) {
	q := NewQueue()

	require.True(t, q.EnqueueAfter(&WorkItem{ID: 1}, 200*time.Millisecond))
	require.True(t, q.Enqueue(&WorkItem{ID: 2}))

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, ItemID(2), item.ID, "gated item must be skipped over")

	_, ok = q.TryDequeue()
	assert.False(t, ok, "gated item must not dispatch before its deadline")

	assert.Eventually(t, func() bool {
		_, ok := q.TryDequeue()
		return ok
	}, time.Second, 10*time.Millisecond, "gated item should become eligible")
}

func TestQueueDrained(t *testing.T) {
	q := NewQueue()

	require.True(t, q.Enqueue(&WorkItem{ID: 1}))
	assert.False(t, q.Drained(), "unsealed queue is never drained")

	q.Seal()
	assert.False(t, q.Drained(), "sealed queue with entries is not drained")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.False(t, q.Drained(), "in-flight item keeps the queue live")

	// A retry enqueued after sealing keeps the queue live.
	require.True(t, q.Enqueue(&WorkItem{ID: 1, Attempt: 2}), "retries may follow Seal")
	q.Done()
	assert.False(t, q.Drained())

	_, ok = q.TryDequeue()
	require.True(t, ok)
	q.Done()

	assert.True(t, q.Drained(), "sealed, empty, nothing in flight")
}

func TestQueueCancelAndDrain(t *testing.T) {
	q := NewQueue()

	require.True(t, q.Enqueue(&WorkItem{ID: 1}))
	require.True(t, q.EnqueueAfter(&WorkItem{ID: 2}, time.Hour))

	items := q.CancelAndDrain()
	require.Len(t, items, 2, "drain returns gated entries too")

	assert.False(t, q.Enqueue(&WorkItem{ID: 3}), "enqueue must fail after cancellation")
	assert.True(t, q.Drained())
}

func TestQueueParkWakesOnEnqueue(t *testing.T) {
	q := NewQueue()

	parked := make(chan error, 1)

	go func() {
		parked <- q.Park(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.Enqueue(&WorkItem{ID: 1}))

	select {
	case err := <-parked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Park did not wake on enqueue")
	}
}

func TestQueueParkReturnsImmediatelyWhenEligible(t *testing.T) {
	q := NewQueue()
	require.True(t, q.Enqueue(&WorkItem{ID: 1}))

	require.NoError(t, q.Park(context.Background()), "eligible work must not block Park")
}

func TestQueueParkReturnsImmediatelyWhenDrained(t *testing.T) {
	q := NewQueue()
	q.Seal()

	require.NoError(t, q.Park(context.Background()), "a drained queue must not block Park")
}

func TestQueueParkHonoursContext(t *testing.T) {
	q := NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	parked := make(chan error, 1)

	go func() {
		parked <- q.Park(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-parked:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Park did not return on context cancellation")
	}
}

func TestQueueParkWakesOnGateExpiry(t *testing.T) {
	q := NewQueue()

	require.True(t, q.EnqueueAfter(&WorkItem{ID: 1}, 50*time.Millisecond))

	start := time.Now()
	require.NoError(t, q.Park(context.Background()))

	assert.Less(t, time.Since(start), time.Second, "Park should wake at the gate deadline")
}
