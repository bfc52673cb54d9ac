// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/runeach/runeach/internal/backoff"
	"github.com/runeach/runeach/internal/ctxlog"
	"github.com/runeach/runeach/internal/progress"
	"golang.org/x/sync/errgroup"
)

// Source yields work items for a run, lazily. Items may arrive with a zero
// ID; the feeder assigns sequence numbers at enqueue.
type Source interface {
	Next(ctx context.Context) (item *WorkItem, ok bool, err error)
}

// Options configures a Pool.
type Options struct {
	Concurrency int              // Maximum simultaneously running items (C)
	MaxRetries  int              // Retries per item beyond the first attempt
	FailFast    bool             // First permanent failure cancels the run
	RetryDelay  backoff.Strategy // Delay before a retry re-enters dispatch
}

// Pool maintains up to C concurrently running supervisors, feeding them from
// the work queue and routing every execution result through the aggregator.
type Pool struct {
	opts      Options
	runner    Runner
	agg       *Aggregator
	queue     *Queue
	canceller *Canceller
	reporter  progress.Reporter
}

// NewPool assembles a pool. A nil reporter disables feedback events.
func NewPool(
	opts Options,
	runner Runner,
	agg *Aggregator,
	canceller *Canceller,
	reporter progress.Reporter,
) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	if opts.RetryDelay == nil {
		opts.RetryDelay = backoff.None{}
	}

	if reporter == nil {
		reporter = progress.NewNullReporter()
	}

	return &Pool{
		opts:      opts,
		runner:    runner,
		agg:       agg,
		queue:     NewQueue(),
		canceller: canceller,
		reporter:  reporter,
	}
}

// Run executes every item the source yields and blocks until all of them
// reach a terminal state, then returns the finalized summary. The returned
// error is engine-internal failure only; per-item failures are accounted in
// the summary.
func (p *Pool) Run(ctx context.Context, src Source) (RunSummary, error) {
	runCtx := p.canceller.Context()
	logger := ctxlog.Logger(ctx).With("run", p.agg.RunID().String())

	logger.Debug("run starting",
		"concurrency", p.opts.Concurrency,
		"maxRetries", p.opts.MaxRetries,
		"failFast", p.opts.FailFast,
	)

	// The feeder runs outside the worker group: after cancellation it may
	// be blocked on a stream read and the run must not wait for it.
	feedErrCh := make(chan error, 1)

	go func() {
		feedErrCh <- p.feed(runCtx, src, logger)
	}()

	// The cancellation watcher sweeps queued items into the Cancelled state
	// the moment the run context is cancelled.
	stopWatch := make(chan struct{})
	watchDone := make(chan struct{})

	go p.watchCancellation(stopWatch, watchDone, logger)

	g := new(errgroup.Group)

	for range p.opts.Concurrency {
		g.Go(func() error {
			return p.worker(ctx, runCtx)
		})
	}

	workerErr := g.Wait()

	close(stopWatch)
	<-watchDone

	var feedErr error

	switch {
	case p.canceller.Reason() == ReasonInternal:
		// An internal failure is raised by the feeder itself, so the feeder
		// has already returned and its error must not be lost.
		feedErr = <-feedErrCh
	case p.canceller.Cancelled():
		// After an interrupt the feeder may still be blocked on a stream
		// read; collect its result only if it already finished.
		select {
		case feedErr = <-feedErrCh:
		default:
		}
	default:
		feedErr = <-feedErrCh
	}

	summary := p.agg.Finalize()

	logger.Debug("run finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"permanentlyFailed", summary.PermanentlyFailed,
		"cancelled", summary.Cancelled,
		"elapsed", summary.Elapsed().String(),
	)

	var errs *multierror.Error

	errs = multierror.Append(errs, workerErr, feedErr)

	return summary, errs.ErrorOrNil()
}

// feed pumps the source into the queue, assigning ids at enqueue, until the
// source is exhausted or the run is cancelled.
func (p *Pool) feed(runCtx context.Context, src Source, logger *slog.Logger) error {
	defer p.queue.Seal()

	var seq int64

	for {
		if runCtx.Err() != nil {
			return nil
		}

		item, ok, err := src.Next(runCtx)
		if err != nil {
			// An unreadable input source is an engine-internal failure and
			// aborts the whole run.
			logger.Error("input source failed", "error", err)
			p.canceller.ForceCancel(ReasonInternal)

			return err
		}

		if !ok {
			logger.Debug("input source exhausted", "items", seq)
			return nil
		}

		seq++
		item.ID = ItemID(seq)

		if item.Attempt == 0 {
			item.Attempt = 1
		}

		p.agg.MarkEnqueued(item.ID)

		if !p.queue.Enqueue(item) {
			// Lost the race with cancellation; account for the item.
			p.agg.MarkCancelled(item.ID)
			p.reportLifecycle(item, progress.EventCancelled, "cancelled before dispatch")

			return nil
		}
	}
}

// worker is one of the C execution slots.
func (p *Pool) worker(parkCtx, runCtx context.Context) error {
	for {
		if item, ok := p.queue.TryDequeue(); ok {
			p.process(runCtx, item)
			// Done comes after process so a retry re-enqueue is visible
			// before the in-flight count drops; Drained can never report
			// true while a retry is still owed to the queue.
			p.queue.Done()

			continue
		}

		if p.queue.Drained() {
			return nil
		}

		if err := p.queue.Park(parkCtx); err != nil {
			// The caller's context is gone; treat it as an interrupt and
			// keep serving until in-flight work is accounted for.
			p.canceller.RequestCancel(ReasonInterrupt)

			parkCtx = context.Background()
		}
	}
}

// process runs one attempt and acts on the aggregator's decision.
func (p *Pool) process(runCtx context.Context, item *WorkItem) {
	if p.canceller.Cancelled() {
		p.agg.MarkCancelled(item.ID)
		p.reportLifecycle(item, progress.EventCancelled, "cancelled before dispatch")

		return
	}

	p.agg.MarkStarted(item.ID)
	p.reportLifecycle(item, progress.EventStarted, "")

	res := p.runner.Run(runCtx, item)

	next := p.agg.Record(res, p.canceller.Cancelled())

	switch next {
	case StateSucceeded:
		p.reportLifecycle(item, progress.EventSucceeded,
			fmt.Sprintf("done in %s", res.Duration.Round(time.Millisecond)))

	case StateRetryScheduled:
		p.reportLifecycle(item, progress.EventRetrying,
			fmt.Sprintf("attempt %d/%d failed (%s), retrying",
				item.Attempt, p.opts.MaxRetries+1, res.Status))

		retry := item.Retry()
		if !p.queue.EnqueueAfter(retry, p.opts.RetryDelay.Delay(item.Attempt)) {
			p.agg.MarkCancelled(item.ID)
			p.reportLifecycle(item, progress.EventCancelled, "cancelled before retry")
		}

	case StatePermanentlyFailed:
		p.reportLifecycle(item, progress.EventFailed,
			fmt.Sprintf("failed (%s) after %d attempt(s)", res.Status, item.Attempt))

		if p.opts.FailFast {
			p.canceller.RequestCancel(ReasonFailFast)
		}

	case StateCancelled:
		p.reportLifecycle(item, progress.EventCancelled, "terminated")
	}
}

// watchCancellation sweeps queued items into the Cancelled state once the
// run context is cancelled.
func (p *Pool) watchCancellation(stop <-chan struct{}, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)

	select {
	case <-stop:
		return
	case <-p.canceller.Context().Done():
	}

	items := p.queue.CancelAndDrain()

	for _, item := range items {
		p.agg.MarkCancelled(item.ID)
		p.reportLifecycle(item, progress.EventCancelled, "cancelled before dispatch")
	}

	logger.Info("cancellation requested",
		"reason", p.canceller.Reason().String(),
		"cancelledPending", len(items),
	)
}

func (p *Pool) reportLifecycle(item *WorkItem, eventType progress.EventType, message string) {
	p.reporter.Report(progress.Event{
		ItemID:    int64(item.ID),
		Label:     item.Label,
		Attempt:   item.Attempt,
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	})
}
