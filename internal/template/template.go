// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package template expands the user's command template for each input item.
//
// Two input modes exist: in arg mode every occurrence of the "{}" placeholder
// in the template is replaced with the item; in stdin mode the template is
// used verbatim and the item is delivered on the child's standard input.
// When no mode is given, arg mode is chosen if the template contains "{}",
// stdin mode otherwise.
package template

import (
	"errors"
	"fmt"
	"strings"
)

// Placeholder is the substring replaced with the input item in arg mode.
const Placeholder = "{}"

// ErrUnknownInputMode is returned when an input mode name cannot be parsed.
var ErrUnknownInputMode = errors.New("unknown input mode")

// InputMode selects how an input item reaches the child process.
type InputMode int

const (
	// ModeAuto picks arg mode when the template contains the placeholder,
	// stdin mode otherwise.
	ModeAuto InputMode = iota
	// ModeStdin pipes the item to the child's standard input.
	ModeStdin
	// ModeArg substitutes the item for the placeholder in the template.
	ModeArg
)

// String implements the Stringer interface for InputMode.
func (m InputMode) String() string {
	switch m {
	case ModeStdin:
		return "stdin"
	case ModeArg:
		return "arg"
	default:
		return "auto"
	}
}

// ParseInputMode parses an input mode name. The empty string means ModeAuto.
func ParseInputMode(s string) (InputMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ModeAuto, nil
	case "stdin":
		return ModeStdin, nil
	case "arg", "filename":
		return ModeArg, nil
	default:
		return ModeAuto, fmt.Errorf("%w: %q", ErrUnknownInputMode, s)
	}
}

// Expander binds a command template to a resolved input mode.
type Expander struct {
	Command string
	Mode    InputMode
}

// NewExpander resolves the mode against the template and returns the bound
// expander.
func NewExpander(command string, mode InputMode) Expander {
	if mode == ModeAuto {
		if strings.Contains(command, Placeholder) {
			mode = ModeArg
		} else {
			mode = ModeStdin
		}
	}

	return Expander{Command: command, Mode: mode}
}

// CommandLine returns the concrete command line for one item.
func (e Expander) CommandLine(item string) string {
	if e.Mode == ModeArg {
		return strings.ReplaceAll(e.Command, Placeholder, item)
	}

	return e.Command
}
