// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (rl *recordingListener) OnEvent(event Event) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.events = append(rl.events, event)
}

func (rl *recordingListener) snapshot() []Event {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	out := make([]Event, len(rl.events))
	copy(out, rl.events)

	return out
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "started", EventStarted.String())
	assert.Equal(t, "output", EventOutput.String())
	assert.Equal(t, "succeeded", EventSucceeded.String())
	assert.Equal(t, "retrying", EventRetrying.String())
	assert.Equal(t, "failed", EventFailed.String())
	assert.Equal(t, "cancelled", EventCancelled.String())
	assert.Equal(t, "unknown", EventType(99).String())
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "stdout", StreamStdout.String())
	assert.Equal(t, "stderr", StreamStderr.String())
}

func TestChannelReporterDeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	cr := NewChannelReporter(context.Background(), 4)
	rl := &recordingListener{}
	cr.Listen(rl)

	for i := range 10 {
		cr.Report(Event{ItemID: int64(i), Type: EventOutput, Line: "line"})
	}

	cr.Close()

	events := rl.snapshot()
	require.Len(t, events, 10)

	for i, ev := range events {
		assert.Equal(t, int64(i), ev.ItemID)
	}
}

func TestChannelReporterBlocksInsteadOfDropping(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Buffer of 1 with a slow listener: every event must still arrive.
	cr := NewChannelReporter(context.Background(), 1)
	rl := &recordingListener{}

	slow := listenerFunc(func(event Event) {
		time.Sleep(time.Millisecond)
		rl.OnEvent(event)
	})
	cr.Listen(slow)

	const n = 50

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func(id int64) {
			defer wg.Done()
			cr.Report(Event{ItemID: id, Type: EventOutput})
		}(int64(i))
	}

	wg.Wait()
	cr.Close()

	assert.Len(t, rl.snapshot(), n)
}

func TestChannelReporterCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	cr := NewChannelReporter(context.Background(), 1)
	cr.Listen(&recordingListener{})

	cr.Close()
	cr.Close()

	// Reports after close are discarded, not blocked.
	done := make(chan struct{})
	go func() {
		cr.Report(Event{Type: EventOutput})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("report after close blocked")
	}
}

func TestMultiListenerFansOut(t *testing.T) {
	a := &recordingListener{}
	b := &recordingListener{}

	ml := MultiListener{a, b}
	ml.OnEvent(Event{ItemID: 7})

	require.Len(t, a.snapshot(), 1)
	require.Len(t, b.snapshot(), 1)
}

type listenerFunc func(Event)

func (f listenerFunc) OnEvent(event Event) { f(event) }
