// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package capture persists per-item command output under a destination
// directory: one .out and one .err file per work item, named by the item's
// sequence number and a sanitized label. Files are opened lazily on the first
// line of the corresponding stream and appended across retry attempts.
package capture

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/runeach/runeach/internal/progress"
	"github.com/spf13/afero"
)

// ErrCreateDestination is returned when the destination directory could not
// be created.
var ErrCreateDestination = errors.New("failed to create destination directory")

const (
	dirPerm   = 0o755
	filePerm  = 0o644
	fileFlags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
)

// Capture is a progress listener that writes output lines to per-item files.
// Like every listener it is driven by the reporter's single consuming
// goroutine, so no locking is needed around the file map.
type Capture struct {
	fs   afero.Fs
	dir  string
	open map[int64]*itemFiles

	mu   sync.Mutex
	errs *multierror.Error
}

type itemFiles struct {
	label string
	out   afero.File
	err   afero.File
}

var _ progress.Listener = (*Capture)(nil)

// New creates the destination directory and returns a capture listener.
func New(fs afero.Fs, dir string) (*Capture, error) {
	if err := fs.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Join(ErrCreateDestination, err)
	}

	return &Capture{
		fs:   fs,
		dir:  dir,
		open: make(map[int64]*itemFiles),
	}, nil
}

// OnEvent implements the progress listener. Output lines are appended to the
// item's stream file; a terminal lifecycle event closes the item's files.
func (c *Capture) OnEvent(event progress.Event) {
	switch event.Type {
	case progress.EventOutput:
		c.writeLine(event)
	case progress.EventSucceeded, progress.EventFailed, progress.EventCancelled:
		c.closeItem(event.ItemID)
	case progress.EventStarted, progress.EventRetrying:
	}
}

// Close closes any files still open and returns every write or close error
// accumulated during the run.
func (c *Capture) Close() error {
	for id := range c.open {
		c.closeItem(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.errs.ErrorOrNil()
}

func (c *Capture) writeLine(event progress.Event) {
	files, ok := c.open[event.ItemID]
	if !ok {
		files = &itemFiles{label: event.Label}
		c.open[event.ItemID] = files
	}

	f, err := c.streamFile(event, files)
	if err != nil {
		c.recordErr(err)
		return
	}

	if _, err := f.WriteString(event.Line + "\n"); err != nil {
		c.recordErr(fmt.Errorf("writing output for %q: %w", event.Label, err))
	}
}

func (c *Capture) streamFile(event progress.Event, files *itemFiles) (afero.File, error) {
	target := &files.out
	ext := "out"

	if event.Stream == progress.StreamStderr {
		target = &files.err
		ext = "err"
	}

	if *target != nil {
		return *target, nil
	}

	name := fmt.Sprintf("%s/%04d-%s.%s", c.dir, event.ItemID, sanitize(event.Label), ext)

	f, err := c.fs.OpenFile(name, fileFlags, filePerm)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", name, err)
	}

	*target = f

	return f, nil
}

func (c *Capture) closeItem(id int64) {
	files, ok := c.open[id]
	if !ok {
		return
	}

	delete(c.open, id)

	for _, f := range []afero.File{files.out, files.err} {
		if f == nil {
			continue
		}

		if err := f.Close(); err != nil {
			c.recordErr(fmt.Errorf("closing output for %q: %w", files.label, err))
		}
	}
}

func (c *Capture) recordErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errs = multierror.Append(c.errs, err)
}

// sanitize maps a label to a filename-safe form.
func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, label)
}
