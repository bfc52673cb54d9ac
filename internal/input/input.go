// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package input produces the lazy, finite sequence of raw items a run
// iterates over: lines read from a reader (normally stdin), literal arguments
// from the command line, or the regular files of a source directory.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrReadSource is returned when the input source cannot be read.
var ErrReadSource = errors.New("failed to read input source")

const maxLineSize = 1024 * 1024 // 1MiB per input line

// Source yields raw input items one at a time. Next returns ok=false once
// the sequence is exhausted. Sources are not safe for concurrent use; a run
// has a single feeder.
type Source interface {
	Next(ctx context.Context) (item string, ok bool, err error)
}

// Lines returns a Source yielding each non-blank line of r, with the line
// terminator stripped.
func Lines(r io.Reader) Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	return &lineSource{sc: sc}
}

type lineSource struct {
	sc *bufio.Scanner
}

func (ls *lineSource) Next(ctx context.Context) (string, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", false, nil
		}

		if !ls.sc.Scan() {
			if err := ls.sc.Err(); err != nil {
				return "", false, errors.Join(ErrReadSource, err)
			}

			return "", false, nil
		}

		line := strings.TrimRight(ls.sc.Text(), "\r")
		if line == "" {
			continue
		}

		return line, true, nil
	}
}

// Args returns a Source yielding the given literal items in order.
func Args(items []string) Source {
	return &argSource{items: items}
}

type argSource struct {
	items []string
	next  int
}

func (as *argSource) Next(_ context.Context) (string, bool, error) {
	if as.next >= len(as.items) {
		return "", false, nil
	}

	item := as.items[as.next]
	as.next++

	return item, true, nil
}

// Dir returns a Source yielding the path of every regular file directly
// inside dir, in lexical order. Subdirectories are skipped.
func Dir(fs afero.Fs, dir string) (Source, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadSource, err)
	}

	paths := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(paths)

	return Args(paths), nil
}
