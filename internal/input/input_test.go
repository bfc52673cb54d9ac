// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package input

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src Source) []string {
	t.Helper()

	var out []string

	for {
		item, ok, err := src.Next(context.Background())
		require.NoError(t, err)

		if !ok {
			return out
		}

		out = append(out, item)
	}
}

func TestLinesSkipsBlanks(t *testing.T) {
	src := Lines(strings.NewReader("one\n\ntwo\r\n\nthree"))
	assert.Equal(t, []string{"one", "two", "three"}, collect(t, src))
}

func TestLinesEmptyInput(t *testing.T) {
	src := Lines(strings.NewReader(""))
	assert.Empty(t, collect(t, src))
}

func TestLinesStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := Lines(strings.NewReader("a\nb\n"))
	_, ok, err := src.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgsYieldsInOrder(t *testing.T) {
	src := Args([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, collect(t, src))
}

func TestDirListsRegularFilesSorted(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src/nested", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/src/b.txt", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/nested/c.txt", []byte("c"), 0o644))

	src, err := Dir(fs, "/src")
	require.NoError(t, err)

	want := []string{
		filepath.Join("/src", "a.txt"),
		filepath.Join("/src", "b.txt"),
	}
	assert.Equal(t, want, collect(t, src), "nested files are skipped")
}

func TestDirMissingDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Dir(fs, "/nope")
	require.ErrorIs(t, err, ErrReadSource)
}
