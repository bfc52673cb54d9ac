// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package config loads optional YAML defaults for the CLI. Flags always win
// over the file; the file wins over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
)

// DefaultFileName is looked up in the working directory when --config is not
// given.
const DefaultFileName = ".runeach.yaml"

var (
	// ErrReadConfig is returned when the config file cannot be read.
	ErrReadConfig = errors.New("failed to read config file")
	// ErrParseConfig is returned when the config file is not valid YAML.
	ErrParseConfig = errors.New("failed to parse config file")
	// ErrInvalidDuration is returned when a duration field cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration in config file")
)

// File holds the recognized defaults. Durations are strings in Go duration
// syntax ("30s", "2m"). The zero value means "not set".
type File struct {
	Shell        string `yaml:"shell"`
	Processes    int    `yaml:"processes"`
	Retries      int    `yaml:"retries"`
	Timeout      string `yaml:"timeout"`
	FailFast     bool   `yaml:"fail_fast"`
	RetryDelay   string `yaml:"retry_delay"`
	RetryBackoff string `yaml:"retry_backoff"`
	Grace        string `yaml:"grace"`
	InputMode    string `yaml:"input_mode"`
	NoProgress   bool   `yaml:"no_progress"`
}

// Load reads and parses the file at path. When path is empty the default
// file name is tried and a missing file yields an empty File; an explicit
// path that does not exist is an error.
func Load(fs afero.Fs, path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if !explicit {
			return &File{}, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseConfig, err)
	}

	return f, nil
}

// Duration parses one of the File's duration fields. An empty value returns
// zero without error.
func Duration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidDuration, err)
	}

	return d, nil
}
