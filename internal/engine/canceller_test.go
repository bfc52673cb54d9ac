// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellerFirstRequestIsGraceful(t *testing.T) {
	c := NewCanceller(context.Background())

	assert.False(t, c.Cancelled())
	assert.Equal(t, ReasonNone, c.Reason())

	c.RequestCancel(ReasonInterrupt)

	assert.True(t, c.Cancelled())
	assert.Equal(t, ReasonInterrupt, c.Reason())
	require.Error(t, c.Context().Err(), "run context must be cancelled")

	select {
	case <-c.ForceCh():
		t.Fatal("first request must not escalate to force")
	default:
	}
}

func TestCancellerSecondRequestEscalates(t *testing.T) {
	c := NewCanceller(context.Background())

	c.RequestCancel(ReasonInterrupt)
	c.RequestCancel(ReasonInterrupt)

	select {
	case <-c.ForceCh():
	default:
		t.Fatal("second request must close the force channel")
	}

	// Further requests are no-ops, not panics.
	c.RequestCancel(ReasonFailFast)
	assert.Equal(t, ReasonInterrupt, c.Reason(), "the first reason wins")
}

func TestCancellerForceCancelSkipsGrace(t *testing.T) {
	c := NewCanceller(context.Background())

	c.ForceCancel(ReasonInternal)

	assert.Equal(t, ReasonInternal, c.Reason())
	require.Error(t, c.Context().Err())

	select {
	case <-c.ForceCh():
	default:
		t.Fatal("ForceCancel must close the force channel")
	}

	c.ForceCancel(ReasonInternal)
}

func TestCancellerInheritsParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := NewCanceller(parent)

	cancel()

	require.Error(t, c.Context().Err(), "run context must follow the parent")
	assert.False(t, c.Cancelled(), "parent cancellation carries no reason")
}
