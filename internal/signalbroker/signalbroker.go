// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package signalbroker listens for OS signals that should terminate the
// process and forwards each delivery to a handler. The first delivery is
// expected to trigger graceful cancellation; repeated deliveries escalate.
package signalbroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/runeach/runeach/internal/ctxlog"
)

var termSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
	os.Interrupt,
}

// New creates a channel that receives the OS signals that should terminate
// the process. If no signals are given, a default termination set is used.
func New(ctx context.Context, sigs ...os.Signal) chan os.Signal {
	ch := make(chan os.Signal, 1)

	if len(sigs) == 0 {
		sigs = termSignals
	}

	ctxlog.Debug(ctx, "signalbroker", "detail", "creating signal broker", "signals", sigs)
	signal.Notify(ch, sigs...)

	return ch
}

// Watch reads signals from sigCh and invokes handle for each delivery until
// the channel is closed or the context is done. The handler is expected to be
// idempotent: the first invocation requests graceful cancellation and any
// subsequent one escalates to forceful termination.
func Watch(ctx context.Context, sigCh chan os.Signal, handle func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}

			ctxlog.Info(ctx, "signal received", "signal", sig.String())
			handle()
		}
	}
}
