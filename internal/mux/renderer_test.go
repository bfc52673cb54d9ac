// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package mux

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runeach/runeach/internal/engine"
	"github.com/runeach/runeach/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRendererRoutesOutputByStream(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRenderer(out, errOut)

	r.OnEvent(progress.Event{Label: "a", Type: progress.EventOutput, Stream: progress.StreamStdout, Line: "hello"})
	r.OnEvent(progress.Event{Label: "a", Type: progress.EventOutput, Stream: progress.StreamStderr, Line: "oops"})

	assert.Equal(t, "[a] hello\n", out.String())
	assert.Equal(t, "[a] oops\n", errOut.String())
}

func TestRendererLifecycleNotes(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRenderer(out, errOut)

	r.OnEvent(progress.Event{Label: "a", Type: progress.EventStarted})
	r.OnEvent(progress.Event{Label: "a", Type: progress.EventSucceeded, Message: "done in 1s"})
	assert.Empty(t, errOut.String(), "start/success must not produce per-item notes")

	r.OnEvent(progress.Event{Label: "b", Type: progress.EventRetrying, Message: "attempt 1/2 failed (code(1)), retrying"})
	r.OnEvent(progress.Event{Label: "c", Type: progress.EventFailed})

	lines := strings.Split(strings.TrimRight(errOut.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[b] attempt 1/2 failed (code(1)), retrying", lines[0])
	assert.Equal(t, "[c] failed", lines[1], "the event type is the fallback note")
	assert.Empty(t, out.String(), "notes never go to stdout")
}

func TestRendererProgressLineTrailsOutput(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	counts := func() engine.ProgressCounts {
		return engine.ProgressCounts{Total: 3, Running: 1, Pending: 1, Succeeded: 1}
	}

	r := NewRenderer(out, errOut, WithProgress(counts))

	r.Refresh()
	assert.Equal(t, "1/3 done, 1 running, 1 pending | ok 1", errOut.String())

	r.OnEvent(progress.Event{Label: "a", Type: progress.EventOutput, Stream: progress.StreamStderr, Line: "x"})

	got := errOut.String()
	assert.Contains(t, got, "\r\x1b[K[a] x\n", "the stale progress line is cleared before the output line")
	assert.True(t, strings.HasSuffix(got, "1/3 done, 1 running, 1 pending | ok 1"),
		"the progress line is redrawn after the output line")
}

func TestRendererSummaryClearsProgress(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	counts := func() engine.ProgressCounts { return engine.ProgressCounts{Total: 2} }
	r := NewRenderer(out, errOut, WithProgress(counts))

	r.Refresh()

	start := time.Now().Add(-1500 * time.Millisecond)
	r.Summary(engine.RunSummary{
		Total: 2, Succeeded: 1, PermanentlyFailed: 1,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})

	got := errOut.String()
	assert.Contains(t, got, "\r\x1b[K")
	assert.True(t, strings.HasSuffix(got,
		"runeach: total=2 succeeded=1 permanently_failed=1 cancelled=0 elapsed=1.5s\n"), "got %q", got)
}

func TestRendererOutputLinesAreAtomic(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRenderer(out, errOut)

	const producers = 8
	const linesEach = 50

	var wg sync.WaitGroup

	for p := range producers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			label := fmt.Sprintf("item-%d", p)
			for i := range linesEach {
				r.OnEvent(progress.Event{
					Label:  label,
					Type:   progress.EventOutput,
					Stream: progress.StreamStdout,
					Line:   fmt.Sprintf("%s line %d", label, i),
				})
			}
		}()
	}

	wg.Wait()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, producers*linesEach)

	for _, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		require.Len(t, parts, 2)

		label := strings.Trim(parts[0], "[]")
		assert.True(t, strings.HasPrefix(parts[1], label+" line "),
			"line %q mixes items", line)
	}
}

func TestRendererTickerStops(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	var mu sync.Mutex

	calls := 0
	counts := func() engine.ProgressCounts {
		mu.Lock()
		defer mu.Unlock()

		calls++

		return engine.ProgressCounts{}
	}

	r := NewRenderer(out, errOut, WithProgress(counts))

	stop := r.StartTicker(10 * time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return calls > 0
	}, time.Second, 5*time.Millisecond)

	stop()
	stop() // idempotent
}
