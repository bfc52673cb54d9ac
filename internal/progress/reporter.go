// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"sync"
)

// ChannelReporter implements Reporter using a Go channel drained by a single
// consuming goroutine. Unlike a fire-and-forget reporter, Report blocks while
// the channel is full: output lines are part of the tool's contract and must
// not be dropped.
type ChannelReporter struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewChannelReporter creates a ChannelReporter with the given buffer size.
// The buffer only smooths bursts; correctness does not depend on its size.
func NewChannelReporter(ctx context.Context, bufferSize int) *ChannelReporter {
	reporterCtx, cancel := context.WithCancel(ctx)

	return &ChannelReporter{
		ch:     make(chan Event, bufferSize),
		ctx:    reporterCtx,
		cancel: cancel,
	}
}

// Report implements Reporter.Report. It blocks until the event is queued or
// the reporter is closed; events sent after Close are discarded.
func (cr *ChannelReporter) Report(event Event) {
	select {
	case <-cr.ctx.Done():
	case cr.ch <- event:
	}
}

// Close implements Reporter.Close. It stops accepting events and waits for
// the consuming goroutine to drain what was already queued. The channel is
// never closed so that a straggling Report can never panic. Close is
// idempotent.
func (cr *ChannelReporter) Close() {
	cr.once.Do(func() {
		cr.cancel()
		cr.wg.Wait()
	})
}

// Listen starts the single consuming goroutine, forwarding every event to the
// listener in order. It must be called at most once, before events flow.
func (cr *ChannelReporter) Listen(listener Listener) {
	cr.wg.Add(1)

	go func() {
		defer cr.wg.Done()

		for {
			select {
			case event := <-cr.ch:
				listener.OnEvent(event)
			case <-cr.ctx.Done():
				// Drain whatever was queued before the reporter closed.
				for {
					select {
					case event := <-cr.ch:
						listener.OnEvent(event)
					default:
						return
					}
				}
			}
		}
	}()
}

// Events exposes the event channel for manual consumption in tests.
func (cr *ChannelReporter) Events() <-chan Event {
	return cr.ch
}
