//go:build !windows

package main

import (
	"errors"
	"log/slog"
)

// Non-Windows builds carry the full portable pipeline but no acquisition
// mechanisms: every strategy refuses to register, so the fallback chain
// exhausts and activation reports ErrNoProvider.

var errUnsupportedPlatform = errors.New("pen input acquisition requires windows")

type unsupportedStrategy struct{}

func (unsupportedStrategy) register(reportSink) error { return errUnsupportedPlatform }
func (unsupportedStrategy) unregister()               {}

func newPointerStrategy(WindowFilter, *slog.Logger) registrationStrategy {
	return unsupportedStrategy{}
}

func newRawHIDStrategy(WindowFilter, *slog.Logger) registrationStrategy {
	return unsupportedStrategy{}
}

func newHookStrategy(TagClassifier, WindowFilter, *slog.Logger) registrationStrategy {
	return unsupportedStrategy{}
}

func newWintabStrategy(*slog.Logger) registrationStrategy {
	return unsupportedStrategy{}
}

// newWindowFilter has no window system to inspect here; nil disables
// suppression entirely.
func newWindowFilter(*denylistMatcher, *slog.Logger) WindowFilter {
	return nil
}
