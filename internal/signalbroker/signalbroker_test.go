// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestWatchInvokesHandlerPerSignal(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32

	sigCh := make(chan os.Signal, 2)
	done := make(chan struct{})

	go func() {
		Watch(context.Background(), sigCh, func() { calls.Add(1) })
		close(done)
	}()

	sigCh <- syscall.SIGINT
	sigCh <- syscall.SIGINT
	close(sigCh)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after channel close")
	}

	assert.Equal(t, int32(2), calls.Load())
}

func TestWatchStopsOnContextDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})

	go func() {
		Watch(ctx, sigCh, func() {})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after context cancellation")
	}
}
