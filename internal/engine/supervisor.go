// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/runeach/runeach/internal/ctxlog"
	"github.com/runeach/runeach/internal/progress"
	"github.com/spf13/afero"
)

const (
	// DefaultGracePeriod is the delay between a termination request and a
	// forceful kill when none is configured.
	DefaultGracePeriod = 5 * time.Second

	// DefaultShell is used when neither --shell nor $SHELL is set.
	DefaultShell = "/bin/sh"

	scanBufSize       = 64 * 1024
	maxOutputLineSize = 1024 * 1024 // 1MiB per captured output line
)

var (
	// ErrCouldNotStartProcess is returned when the process could not be started.
	ErrCouldNotStartProcess = errors.New("could not start process")
	// ErrFailedToCreatePipe is returned when an output pipe could not be created.
	ErrFailedToCreatePipe = errors.New("failed to create pipe")
	// ErrFailedToReadOutput is returned when a captured stream could not be read.
	ErrFailedToReadOutput = errors.New("failed to read process output")
	// ErrOpenStdin is returned when the stdin input file could not be opened.
	ErrOpenStdin = errors.New("failed to open stdin file")
)

// Runner executes one attempt of one work item. The scheduler depends on this
// interface so tests can substitute fakes for real child processes.
type Runner interface {
	// Run blocks until the attempt finishes and always returns exactly one
	// ExecutionResult; no error escapes this boundary.
	Run(ctx context.Context, item *WorkItem) ExecutionResult
}

var _ Runner = (*Supervisor)(nil)

// Supervisor owns the lifecycle of one child process per Run invocation:
// spawn through the shell, stream output lines to the reporter, and enforce
// the timeout/termination escalation (terminate, grace period, kill).
type Supervisor struct {
	Shell    string            // Shell executable; DefaultShell when empty
	Timeout  time.Duration     // Per-attempt timeout; zero means none
	Grace    time.Duration     // Termination grace period
	Reporter progress.Reporter // Receives tagged output lines
	FS       afero.Fs          // For stdin input files; os fs when nil
	Force    <-chan struct{}   // Closed to skip the grace period entirely
}

// Run implements the Runner interface for Supervisor.
func (s *Supervisor) Run(ctx context.Context, item *WorkItem) ExecutionResult {
	logger := ctxlog.Logger(ctx).
		With("item", int64(item.ID)).
		With("attempt", item.Attempt)

	res := ExecutionResult{
		ItemID:    item.ID,
		Attempt:   item.Attempt,
		StartedAt: time.Now(),
	}

	reporter := s.Reporter
	if reporter == nil {
		reporter = progress.NewNullReporter()
	}

	shell := s.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.Command(shell, "-c", item.CommandLine)
	setProcessGroup(cmd)

	switch {
	case item.StdinPath != "":
		fs := s.FS
		if fs == nil {
			fs = afero.NewOsFs()
		}

		f, err := fs.Open(item.StdinPath)
		if err != nil {
			return spawnFailure(res, errors.Join(ErrOpenStdin, err))
		}

		defer f.Close() //nolint:errcheck

		cmd.Stdin = f
	case item.StdinData != "":
		cmd.Stdin = strings.NewReader(item.StdinData)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return spawnFailure(res, errors.Join(ErrFailedToCreatePipe, err))
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return spawnFailure(res, errors.Join(ErrFailedToCreatePipe, err))
	}

	logger.Debug("starting process", "shell", shell, "command", item.CommandLine)

	if err := cmd.Start(); err != nil {
		return spawnFailure(res, errors.Join(ErrCouldNotStartProcess, err))
	}

	logger.Debug("process started", "pid", cmd.Process.Pid)

	scanErrCh := make(chan error, 2)

	var scanWG sync.WaitGroup

	scanWG.Add(2)

	go s.forward(&scanWG, scanErrCh, item, progress.StreamStdout, stdout, reporter)
	go s.forward(&scanWG, scanErrCh, item, progress.StreamStderr, stderr, reporter)

	// The watchdog handles timeout, cancellation and forced termination.
	// killed records why the process was terminated, if it was.
	done := make(chan struct{})
	killed := make(chan TermReason, 1)

	go s.watch(ctx, cmd, done, killed, logger)

	// The pipes must be fully drained before Wait closes them.
	scanWG.Wait()

	waitErr := cmd.Wait()

	close(done)

	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	var reason TermReason

	select {
	case reason = <-killed:
	default:
	}

	close(scanErrCh)

	for scanErr := range scanErrCh {
		res.Err = errors.Join(res.Err, scanErr)
	}

	switch {
	case reason != TermNone && exitedOnSignal(cmd.ProcessState):
		// The watchdog can fire in the instant between a natural exit and
		// done closing; its reason only counts when a signal actually ended
		// the process.
		res.Status = ExitStatus{Kind: ExitSignal, Reason: reason}
	case waitErr == nil:
		res.Status = ExitStatus{Kind: ExitSuccess}
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Status = ExitStatus{Kind: ExitCode, Code: exitErr.ExitCode()}
		} else {
			res.Err = errors.Join(res.Err, waitErr)
			res.Status = ExitStatus{Kind: ExitCode, Code: SpawnErrorCode}
		}
	}

	logger.Debug("process finished",
		"status", res.Status.String(),
		"duration", res.Duration.String(),
	)

	return res
}

// forward streams one captured pipe to the reporter, one event per line.
func (s *Supervisor) forward(
	wg *sync.WaitGroup,
	errCh chan<- error,
	item *WorkItem,
	stream progress.Stream,
	r io.Reader,
	reporter progress.Reporter,
) {
	defer wg.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, scanBufSize), maxOutputLineSize)

	for sc.Scan() {
		reporter.Report(progress.Event{
			ItemID:    int64(item.ID),
			Label:     item.Label,
			Attempt:   item.Attempt,
			Type:      progress.EventOutput,
			Stream:    stream,
			Line:      sc.Text(),
			Timestamp: time.Now(),
		})
	}

	if err := sc.Err(); err != nil {
		errCh <- errors.Join(ErrFailedToReadOutput, err)
	}
}

// watch enforces the termination escalation: on timeout or cancellation,
// terminate the process group, wait out the grace period, then kill. A
// closed Force channel skips straight to the kill.
func (s *Supervisor) watch(
	ctx context.Context,
	cmd *exec.Cmd,
	done <-chan struct{},
	killed chan<- TermReason,
	logger *slog.Logger,
) {
	var timeoutCh <-chan time.Time

	if s.Timeout > 0 {
		timer := time.NewTimer(s.Timeout)
		defer timer.Stop()

		timeoutCh = timer.C
	}

	var reason TermReason

	select {
	case <-done:
		return
	case <-timeoutCh:
		reason = TermTimeout
	case <-ctx.Done():
		reason = TermCancelled
	case <-s.Force:
		killed <- TermCancelled

		logger.Info("force-killing process", "pid", cmd.Process.Pid)
		killProcessGroup(cmd.Process, logger)

		return
	}

	killed <- reason

	logger.Info("terminating process", "reason", reason.String(), "pid", cmd.Process.Pid)
	terminateProcessGroup(cmd.Process, logger)

	grace := s.Grace
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	select {
	case <-done:
	case <-time.After(grace):
		logger.Info("grace period elapsed, killing process", "pid", cmd.Process.Pid)
		killProcessGroup(cmd.Process, logger)
	case <-s.Force:
		logger.Info("force-killing process", "pid", cmd.Process.Pid)
		killProcessGroup(cmd.Process, logger)
	}
}

func spawnFailure(res ExecutionResult, err error) ExecutionResult {
	res.Err = err
	res.Status = ExitStatus{Kind: ExitCode, Code: SpawnErrorCode, SpawnFailed: true}
	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	return res
}
