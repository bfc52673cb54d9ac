// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

// Package backoff provides retry delay strategies. All strategies are
// stateless and safe for concurrent use.
package backoff

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnknownStrategy is returned when a strategy name cannot be parsed.
var ErrUnknownStrategy = errors.New("unknown backoff strategy")

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retrying after the given failed
	// attempt (1-indexed: attempt 1 is the first execution of the item).
	Delay(attempt int) time.Duration
}

// None retries immediately. It is the default: failed items re-enter the
// queue at the back with no delay gate.
type None struct{}

// Delay implements Strategy.
func (None) Delay(_ int) time.Duration { return 0 }

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// Delay implements Strategy.
func (c Constant) Delay(_ int) time.Duration { return c.Interval }

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay implements Strategy.
func (l Linear) Delay(attempt int) time.Duration {
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}

	return d
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay implements Strategy.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}

	return d
}

// Parse builds a Strategy from a name and a base delay. Known names are
// "none", "constant", "linear" and "exponential". An empty name with a
// positive base delay selects a constant strategy; an explicit "none"
// retries immediately regardless of the base delay. Linear and exponential
// strategies are capped at 60x the base delay.
func Parse(name string, base time.Duration) (Strategy, error) {
	const capFactor = 60

	switch name {
	case "":
		// A bare base delay implies a constant strategy.
		if base > 0 {
			return Constant{Interval: base}, nil
		}

		return None{}, nil
	case "none":
		return None{}, nil
	case "constant":
		return Constant{Interval: base}, nil
	case "linear":
		return Linear{Initial: base, Max: base * capFactor}, nil
	case "exponential":
		return Exponential{Initial: base, Max: base * capFactor}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
