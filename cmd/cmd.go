// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package cmd contains the command-line interface (CLI) for the module.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/runeach/runeach/internal/backoff"
	"github.com/runeach/runeach/internal/capture"
	"github.com/runeach/runeach/internal/config"
	"github.com/runeach/runeach/internal/ctxlog"
	"github.com/runeach/runeach/internal/engine"
	"github.com/runeach/runeach/internal/input"
	"github.com/runeach/runeach/internal/mux"
	"github.com/runeach/runeach/internal/progress"
	"github.com/runeach/runeach/internal/signalbroker"
	"github.com/runeach/runeach/internal/template"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

const (
	processesFlag    = "processes"
	retriesFlag      = "retries"
	timeoutFlag      = "timeout"
	failFastFlag     = "fail-fast"
	shellFlag        = "shell"
	inputModeFlag    = "input-mode"
	sourceDirFlag    = "source-dir"
	destinationFlag  = "destination"
	retryDelayFlag   = "retry-delay"
	retryBackoffFlag = "retry-backoff"
	graceFlag        = "grace"
	noProgressFlag   = "no-progress"
	configFlag       = "config"
)

// Exit codes. Per-item failures and cancellation are distinguishable from
// engine-internal failures so scripts can react to each.
const (
	ExitSuccess   = 0
	ExitFailed    = 1   // at least one item permanently failed
	ExitInternal  = 3   // engine-internal failure or bad invocation
	ExitCancelled = 130 // the run was cancelled before completion
)

const (
	reporterBuffer = 256
	maxLabelLen    = 48
)

// ErrNoCommand is returned when no command template is given.
var ErrNoCommand = errors.New("no command template given")

// RootCmd is the root command for the CLI.
var RootCmd = NewRootCmd()

// NewRootCmd builds a fresh root command. Tests use their own instance
// because a command carries parsed flag state after Run.
func NewRootCmd() *cli.Command {
	return &cli.Command{
		Name:      "runeach",
		Usage:     "run a shell command once per input item, in parallel",
		UsageText: "runeach [options] COMMAND [ITEM ...]",
		Description: `Runeach runs a user-supplied shell command once per input item with bounded
concurrency, a retry policy, live progress feedback and deterministic failure
accounting.

Items are read from stdin, one per line, unless literal items follow the
command template or --source-dir is given. The {} placeholder in the template
is replaced with the item; without a placeholder the item is piped to the
command's standard input.`,
		Writer:                os.Stdout,
		ErrWriter:             os.Stderr,
		Reader:                os.Stdin,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    processesFlag,
				Aliases: []string{"j"},
				Usage:   "Maximum number of commands running at once",
				Value:   runtime.NumCPU(),
			},
			&cli.IntFlag{
				Name:  retriesFlag,
				Usage: "Retries per item after a failed attempt",
			},
			&cli.DurationFlag{
				Name:  timeoutFlag,
				Usage: "Per-item timeout (0 = none)",
			},
			&cli.BoolFlag{
				Name:  failFastFlag,
				Usage: "Cancel the whole run on the first permanent failure",
			},
			&cli.StringFlag{
				Name:  shellFlag,
				Usage: "Shell used to run the command (default: $SHELL, then /bin/sh)",
			},
			&cli.StringFlag{
				Name:  inputModeFlag,
				Usage: "How items reach the command: auto, arg or stdin",
				Value: "auto",
			},
			&cli.StringFlag{
				Name:  sourceDirFlag,
				Usage: "Use the files of this directory as items instead of stdin",
			},
			&cli.StringFlag{
				Name:  destinationFlag,
				Usage: "Write per-item .out/.err files into this directory",
			},
			&cli.DurationFlag{
				Name:  retryDelayFlag,
				Usage: "Base delay before a retry (default: retry immediately)",
			},
			&cli.StringFlag{
				Name:  retryBackoffFlag,
				Usage: "Retry delay growth: none, constant, linear or exponential",
			},
			&cli.DurationFlag{
				Name:  graceFlag,
				Usage: "Grace period between termination request and forceful kill",
				Value: engine.DefaultGracePeriod,
			},
			&cli.BoolFlag{
				Name:  noProgressFlag,
				Usage: "Suppress the refreshing progress line",
			},
			&cli.StringFlag{
				Name:      configFlag,
				Usage:     "YAML file with flag defaults (default: " + config.DefaultFileName + ")",
				TakesFile: true,
			},
		},
		Action: actionFunc,
	}
}

// settings is the merged run configuration: flags win over the config file,
// the config file wins over built-in defaults.
type settings struct {
	processes    int
	retries      int
	timeout      time.Duration
	failFast     bool
	shell        string
	inputMode    template.InputMode
	sourceDir    string
	destination  string
	retryDelay   backoff.Strategy
	grace        time.Duration
	noProgress   bool
	command      string
	items        []string
	showProgress bool
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	fs := afero.NewOsFs()

	s, err := resolveSettings(cmd, fs)
	if err != nil {
		return cli.Exit(err.Error(), ExitInternal)
	}

	src, err := inputSource(cmd, fs, s)
	if err != nil {
		return cli.Exit(err.Error(), ExitInternal)
	}

	canceller := engine.NewCanceller(ctx)

	// The first signal requests graceful cancellation; Canceller escalates
	// repeated deliveries to forceful termination by itself.
	sigCh := signalbroker.New(ctx)

	go signalbroker.Watch(ctx, sigCh, func() {
		canceller.RequestCancel(engine.ReasonInterrupt)
	})

	agg := engine.NewAggregator(s.retries)

	var rendererOpts []mux.Option
	if s.showProgress {
		rendererOpts = append(rendererOpts, mux.WithProgress(agg.Progress))
	}

	renderer := mux.NewRenderer(cmd.Writer, cmd.ErrWriter, rendererOpts...)

	listeners := progress.MultiListener{renderer}

	var sink *capture.Capture

	if s.destination != "" {
		sink, err = capture.New(fs, s.destination)
		if err != nil {
			return cli.Exit(err.Error(), ExitInternal)
		}

		listeners = append(listeners, sink)
	}

	reporter := progress.NewChannelReporter(ctx, reporterBuffer)
	reporter.Listen(listeners)

	stopTicker := func() {}
	if s.showProgress {
		stopTicker = renderer.StartTicker(mux.DefaultRefreshInterval)
	}

	supervisor := &engine.Supervisor{
		Shell:    s.shell,
		Timeout:  s.timeout,
		Grace:    s.grace,
		Reporter: reporter,
		Force:    canceller.ForceCh(),
	}

	pool := engine.NewPool(engine.Options{
		Concurrency: s.processes,
		MaxRetries:  s.retries,
		FailFast:    s.failFast,
		RetryDelay:  s.retryDelay,
	}, supervisor, agg, canceller, reporter)

	expander := template.NewExpander(s.command, s.inputMode)

	summary, runErr := pool.Run(ctx, &workSource{
		src:      src,
		expander: expander,
		fromDir:  s.sourceDir != "",
	})

	stopTicker()
	reporter.Close()

	if sink != nil {
		runErr = multierror.Append(runErr, sink.Close()).ErrorOrNil()
	}

	renderer.Summary(summary)

	return exitError(ctx, summary, canceller.Reason(), runErr)
}

// exitError maps the run outcome to the documented exit codes.
func exitError(ctx context.Context, summary engine.RunSummary, reason engine.CancelReason, runErr error) error {
	if runErr != nil {
		ctxlog.Error(ctx, "run aborted", "error", runErr)
		return cli.Exit(runErr.Error(), ExitInternal)
	}

	switch {
	case reason == engine.ReasonInterrupt:
		return cli.Exit("", ExitCancelled)
	case summary.PermanentlyFailed > 0:
		return cli.Exit("", ExitFailed)
	case summary.Cancelled > 0:
		return cli.Exit("", ExitCancelled)
	default:
		return nil
	}
}

// resolveSettings merges flags over the optional YAML config file.
func resolveSettings(cmd *cli.Command, fs afero.Fs) (*settings, error) {
	cfg, err := config.Load(fs, cmd.String(configFlag))
	if err != nil {
		return nil, err
	}

	s := &settings{
		processes:   cmd.Int(processesFlag),
		retries:     cmd.Int(retriesFlag),
		timeout:     cmd.Duration(timeoutFlag),
		failFast:    cmd.Bool(failFastFlag),
		shell:       cmd.String(shellFlag),
		sourceDir:   cmd.String(sourceDirFlag),
		destination: cmd.String(destinationFlag),
		grace:       cmd.Duration(graceFlag),
		noProgress:  cmd.Bool(noProgressFlag),
	}

	if !cmd.IsSet(processesFlag) && cfg.Processes > 0 {
		s.processes = cfg.Processes
	}

	if !cmd.IsSet(retriesFlag) && cfg.Retries > 0 {
		s.retries = cfg.Retries
	}

	if !cmd.IsSet(timeoutFlag) {
		if s.timeout, err = config.Duration(cfg.Timeout); err != nil {
			return nil, err
		}
	}

	if !cmd.IsSet(failFastFlag) {
		s.failFast = cfg.FailFast
	}

	if !cmd.IsSet(graceFlag) && cfg.Grace != "" {
		if s.grace, err = config.Duration(cfg.Grace); err != nil {
			return nil, err
		}
	}

	if !cmd.IsSet(noProgressFlag) {
		s.noProgress = cfg.NoProgress
	}

	if s.shell == "" {
		s.shell = cfg.Shell
	}

	if s.shell == "" {
		s.shell = os.Getenv("SHELL")
	}

	modeName := cmd.String(inputModeFlag)
	if !cmd.IsSet(inputModeFlag) && cfg.InputMode != "" {
		modeName = cfg.InputMode
	}

	if s.inputMode, err = template.ParseInputMode(modeName); err != nil {
		return nil, err
	}

	retryDelay := cmd.Duration(retryDelayFlag)

	if !cmd.IsSet(retryDelayFlag) {
		if retryDelay, err = config.Duration(cfg.RetryDelay); err != nil {
			return nil, err
		}
	}

	backoffName := cmd.String(retryBackoffFlag)
	if !cmd.IsSet(retryBackoffFlag) && cfg.RetryBackoff != "" {
		backoffName = cfg.RetryBackoff
	}

	if s.retryDelay, err = backoff.Parse(backoffName, retryDelay); err != nil {
		return nil, err
	}

	if s.processes < 1 {
		s.processes = 1
	}

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return nil, ErrNoCommand
	}

	s.command = args[0]
	s.items = args[1:]

	s.showProgress = !s.noProgress && isTerminal(cmd.ErrWriter)

	return s, nil
}

// inputSource picks the item source: directory files, literal arguments, or
// stdin lines.
func inputSource(cmd *cli.Command, fs afero.Fs, s *settings) (input.Source, error) {
	switch {
	case s.sourceDir != "":
		return input.Dir(fs, s.sourceDir)
	case len(s.items) > 0:
		return input.Args(s.items), nil
	default:
		return input.Lines(cmd.Reader), nil
	}
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)

	return ok && term.IsTerminal(int(f.Fd()))
}

// workSource adapts an input source to the engine: each raw item is expanded
// into a concrete command line and wrapped into a work item.
type workSource struct {
	src      input.Source
	expander template.Expander
	fromDir  bool
}

func (ws *workSource) Next(ctx context.Context) (*engine.WorkItem, bool, error) {
	item, ok, err := ws.src.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}

	w := &engine.WorkItem{
		Input:       item,
		Label:       label(item),
		CommandLine: ws.expander.CommandLine(item),
	}

	if ws.expander.Mode == template.ModeStdin {
		if ws.fromDir {
			w.StdinPath = item
		} else {
			w.StdinData = item + "\n"
		}
	}

	return w, true, nil
}

// label derives the display label from the raw item, truncated to keep the
// feedback stream readable.
func label(item string) string {
	runes := []rune(item)
	if len(runes) <= maxLabelLen {
		return item
	}

	return fmt.Sprintf("%s...", string(runes[:maxLabelLen-3]))
}
