// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package mux serializes concurrent command output into a coherent feedback
// stream: label-prefixed output lines, a refreshing progress line and the
// final run summary. The Renderer is driven by the single consuming goroutine
// of a progress reporter, which makes it the single-writer point the
// line-atomicity guarantee depends on. An internal mutex additionally
// serializes the periodic progress refresh against event-driven writes.
package mux

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/runeach/runeach/internal/engine"
	"github.com/runeach/runeach/internal/progress"
)

// DefaultRefreshInterval is how often the progress line is redrawn between
// events.
const DefaultRefreshInterval = 500 * time.Millisecond

const clearLine = "\r\x1b[K"

// Renderer writes the feedback stream. Command stdout lines go to out,
// everything else (stderr lines, lifecycle notes, the progress line and the
// summary) goes to errOut.
type Renderer struct {
	mu            sync.Mutex
	out           io.Writer
	errOut        io.Writer
	showProgress  bool
	progressDrawn bool
	counts        func() engine.ProgressCounts

	labelStyle  lipgloss.Style
	okStyle     lipgloss.Style
	retryStyle  lipgloss.Style
	failStyle   lipgloss.Style
	cancelStyle lipgloss.Style
	dimStyle    lipgloss.Style
}

var _ progress.Listener = (*Renderer)(nil)

// Option mutates a Renderer at construction time.
type Option func(*Renderer)

// WithProgress enables the refreshing progress line, fed by the given counts
// snapshot function. Only enable this when errOut is a terminal.
func WithProgress(counts func() engine.ProgressCounts) Option {
	return func(r *Renderer) {
		r.showProgress = true
		r.counts = counts
	}
}

// NewRenderer creates a renderer writing to the given sinks. Styling follows
// the color capability of errOut: piping the output yields plain text.
func NewRenderer(out, errOut io.Writer, opts ...Option) *Renderer {
	lr := lipgloss.NewRenderer(errOut)

	r := &Renderer{
		out:         out,
		errOut:      errOut,
		labelStyle:  lr.NewStyle().Foreground(lipgloss.Color("6")),
		okStyle:     lr.NewStyle().Foreground(lipgloss.Color("2")),
		retryStyle:  lr.NewStyle().Foreground(lipgloss.Color("3")),
		failStyle:   lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		cancelStyle: lr.NewStyle().Foreground(lipgloss.Color("5")),
		dimStyle:    lr.NewStyle().Faint(true),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// OnEvent implements the progress listener: output lines are written
// atomically with the item label prefix, lifecycle changes become short notes
// on errOut. The progress line is cleared before and redrawn after each
// write so it always trails the last complete line.
func (r *Renderer) OnEvent(event progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearProgressLocked()

	switch event.Type {
	case progress.EventOutput:
		line := fmt.Sprintf("%s %s\n", r.labelStyle.Render("["+event.Label+"]"), event.Line)

		if event.Stream == progress.StreamStderr {
			fmt.Fprint(r.errOut, line)
		} else {
			fmt.Fprint(r.out, line)
		}

	case progress.EventRetrying:
		r.noteLocked(r.retryStyle, event)

	case progress.EventFailed:
		r.noteLocked(r.failStyle, event)

	case progress.EventCancelled:
		r.noteLocked(r.cancelStyle, event)

	case progress.EventStarted, progress.EventSucceeded:
		// Counted in the progress line; no per-item note.
	}

	r.drawProgressLocked()
}

// Refresh redraws the progress line. Called by the periodic ticker.
func (r *Renderer) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearProgressLocked()
	r.drawProgressLocked()
}

// StartTicker refreshes the progress line every interval until the returned
// stop function is called. A zero interval uses DefaultRefreshInterval.
func (r *Renderer) StartTicker(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				r.Refresh()
			}
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stopCh)
			<-doneCh
		})
	}
}

// Summary clears the progress line and writes the final accounting.
func (r *Renderer) Summary(s engine.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearProgressLocked()

	style := r.okStyle
	if s.PermanentlyFailed > 0 {
		style = r.failStyle
	} else if s.Cancelled > 0 {
		style = r.cancelStyle
	}

	fmt.Fprintf(r.errOut, "%s %s\n",
		style.Render("runeach:"),
		fmt.Sprintf("total=%d succeeded=%d permanently_failed=%d cancelled=%d elapsed=%s",
			s.Total, s.Succeeded, s.PermanentlyFailed, s.Cancelled,
			s.Elapsed().Round(time.Millisecond)))
}

func (r *Renderer) noteLocked(style lipgloss.Style, event progress.Event) {
	note := event.Type.String()
	if event.Message != "" {
		note = event.Message
	}

	fmt.Fprintf(r.errOut, "%s %s\n",
		r.labelStyle.Render("["+event.Label+"]"),
		style.Render(note))
}

func (r *Renderer) drawProgressLocked() {
	if !r.showProgress || r.counts == nil {
		return
	}

	c := r.counts()

	var sb strings.Builder

	done := c.Succeeded + c.Failed + c.Cancelled

	fmt.Fprintf(&sb, "%d/%d done", done, c.Total)
	fmt.Fprintf(&sb, ", %d running, %d pending", c.Running, c.Pending)
	fmt.Fprintf(&sb, " | ok %d", c.Succeeded)

	if c.Failed > 0 {
		fmt.Fprintf(&sb, " failed %d", c.Failed)
	}

	if c.Cancelled > 0 {
		fmt.Fprintf(&sb, " cancelled %d", c.Cancelled)
	}

	fmt.Fprint(r.errOut, r.dimStyle.Render(sb.String()))

	r.progressDrawn = true
}

func (r *Renderer) clearProgressLocked() {
	if !r.progressDrawn {
		return
	}

	fmt.Fprint(r.errOut, clearLine)

	r.progressDrawn = false
}
