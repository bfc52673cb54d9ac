// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package main is the entry point for the runeach command-line application.
package main

import (
	"context"
	"os"

	"github.com/runeach/runeach/cmd"
	"github.com/runeach/runeach/internal/ctxlog"
)

// Version and Commit are set during the build process.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)

	defer cancel()

	cmd.RootCmd.Version = Version + " (" + Commit + ")"

	// Interrupt handling lives inside the command: the first signal must
	// cancel the run gracefully, not tear down the root context.
	err := cmd.RootCmd.Run(ctx, os.Args)
	if err != nil {
		ctxlog.Logger(ctx).Error("command failed", "error", err)
		os.Exit(1)
	}
}
