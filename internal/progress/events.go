// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package progress carries real-time execution events from the engine to the
// feedback sinks. Reporters are the producer side; a single consuming
// goroutine hands events to listeners in order, which makes the listener
// chain the single-writer point for terminal and file output.
package progress

import (
	"time"
)

// Event is a real-time update from the execution engine: an output line from
// a running item, or an item lifecycle change.
type Event struct {
	ItemID    int64     // Sequence number of the work item the event belongs to
	Label     string    // Display label of the work item
	Attempt   int       // Attempt number (1-based)
	Type      EventType // What happened
	Stream    Stream    // For EventOutput: which stream the line came from
	Line      string    // For EventOutput: the output line, without trailing newline
	Message   string    // Human-readable detail for lifecycle events
	Timestamp time.Time // When the event occurred
}

// EventType identifies what an Event reports.
type EventType int

const (
	// EventStarted indicates an attempt has begun execution.
	EventStarted EventType = iota
	// EventOutput indicates a captured stdout/stderr line.
	EventOutput
	// EventSucceeded indicates the item reached its terminal success state.
	EventSucceeded
	// EventRetrying indicates a failed attempt that will be retried.
	EventRetrying
	// EventFailed indicates the item is permanently failed.
	EventFailed
	// EventCancelled indicates the item was cancelled.
	EventCancelled
)

// String implements the Stringer interface for EventType.
func (et EventType) String() string {
	switch et {
	case EventStarted:
		return "started"
	case EventOutput:
		return "output"
	case EventSucceeded:
		return "succeeded"
	case EventRetrying:
		return "retrying"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Stream identifies the origin of an output line.
type Stream int

const (
	// StreamStdout is the child process standard output.
	StreamStdout Stream = iota
	// StreamStderr is the child process standard error.
	StreamStderr
)

// String implements the Stringer interface for Stream.
func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}

	return "stdout"
}

// Reporter is the interface the engine uses to emit events.
type Reporter interface {
	// Report delivers an event. Delivery preserves per-producer order and
	// must not drop output lines; implementations may block until the event
	// is handed off or the reporter is closed.
	Report(event Event)
	// Close signals that no more events will be sent and releases resources.
	Close()
}

// Listener receives events from a Reporter's consuming goroutine.
// OnEvent is never called concurrently, which makes the listener the
// single-writer point for the feedback sink.
type Listener interface {
	OnEvent(event Event)
}

// NullReporter is a no-op Reporter for tests and disabled feedback.
type NullReporter struct{}

// Report implements Reporter by doing nothing.
func (nr *NullReporter) Report(_ Event) {}

// Close implements Reporter by doing nothing.
func (nr *NullReporter) Close() {}

// NewNullReporter creates a new NullReporter.
func NewNullReporter() Reporter {
	return &NullReporter{}
}

// MultiListener fans a single event stream out to several listeners, in order.
type MultiListener []Listener

// OnEvent implements Listener.
func (ml MultiListener) OnEvent(event Event) {
	for _, l := range ml {
		l.OnEvent(event)
	}
}
