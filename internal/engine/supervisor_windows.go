// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

//go:build windows

package engine

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on Windows; termination only reaches the
// immediate child.
func setProcessGroup(_ *exec.Cmd) {}

// exitedOnSignal always reports true on Windows: TerminateProcess leaves an
// exit code indistinguishable from a natural exit, so the watchdog's reason
// stands.
func exitedOnSignal(_ *os.ProcessState) bool {
	return true
}

// terminateProcessGroup has no graceful equivalent on Windows; kill directly.
func terminateProcessGroup(ps *os.Process, logger *slog.Logger) {
	killProcessGroup(ps, logger)
}

func killProcessGroup(ps *os.Process, logger *slog.Logger) {
	if ps == nil {
		return
	}

	if err := ps.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Error("failed to kill process", "pid", ps.Pid, "error", err)
	}
}
