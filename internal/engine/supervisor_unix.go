// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

//go:build !windows

package engine

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so that
// termination reaches the whole shell pipeline, not just the shell.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// exitedOnSignal reports whether the process was ended by a signal rather
// than exiting on its own.
func exitedOnSignal(state *os.ProcessState) bool {
	if state == nil {
		return false
	}

	ws, ok := state.Sys().(syscall.WaitStatus)

	return ok && ws.Signaled()
}

func terminateProcessGroup(ps *os.Process, logger *slog.Logger) {
	signalGroup(ps, syscall.SIGTERM, logger)
}

func killProcessGroup(ps *os.Process, logger *slog.Logger) {
	signalGroup(ps, syscall.SIGKILL, logger)
}

func signalGroup(ps *os.Process, sig syscall.Signal, logger *slog.Logger) {
	if ps == nil {
		return
	}

	if err := syscall.Kill(-ps.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			logger.Debug("process group already gone", "pid", ps.Pid)
			return
		}

		logger.Debug("process group signal failed, signalling leader directly",
			"pid", ps.Pid, "signal", sig.String(), "error", err)

		if err := ps.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Error("failed to signal process", "pid", ps.Pid, "error", err)
		}
	}
}
