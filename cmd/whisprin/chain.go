package main

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrNoProvider is reported once when every acquisition mechanism failed to
// register. The hosting supervisor decides whether that is fatal.
var ErrNoProvider = errors.New("no pen input mechanism available")

// FallbackChain tries providers in priority order and republishes the
// winner's events verbatim on one unified stream.
//
// The chain does not self-heal: if the active mechanism dies it simply goes
// silent, and reactivation is triggered externally. On deactivation the
// stream gate closes before the provider's Stop runs, so no event can be
// delivered after teardown begins.
type FallbackChain struct {
	providers []Provider
	logger    *slog.Logger

	// accepting gates publish. It is the "subscription": flipped off before
	// Stop so late callbacks from the OS thread are dropped, not delivered.
	accepting atomic.Bool

	mu     sync.Mutex
	active Provider

	events chan PenEvent
}

// NewFallbackChain builds a chain over the given providers. The slice is
// assumed to already be in priority order (most capable first).
func NewFallbackChain(providers []Provider, logger *slog.Logger) *FallbackChain {
	return &FallbackChain{
		providers: providers,
		logger:    logger,
		events:    make(chan PenEvent, penEventBufferSize),
	}
}

// Activate walks the provider list and activates the first one whose Start
// succeeds. Providers after the winner are never started. Returns
// ErrNoProvider when the list is exhausted.
func (c *FallbackChain) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil
	}

	c.accepting.Store(true)

	for _, p := range c.providers {
		if p.Start(c.publish) {
			c.active = p
			c.logger.Info("pen provider active", "provider", p.Name(), "priority", p.Priority())
			return nil
		}
		c.logger.Info("pen provider unavailable, falling back", "provider", p.Name())
	}

	c.accepting.Store(false)
	return ErrNoProvider
}

// Deactivate closes the stream gate, then stops the active provider, in that
// order. Safe to call when never activated.
func (c *FallbackChain) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Gate first: events must stop flowing before teardown of the OS
	// resource begins.
	c.accepting.Store(false)

	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}
}

// Events is the unified pen event stream, independent of which provider won.
func (c *FallbackChain) Events() <-chan PenEvent {
	return c.events
}

// IsActive reports whether some provider currently owns an OS mechanism.
func (c *FallbackChain) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && c.active.Active()
}

// ActiveName returns the active provider's name, or "" when inactive.
func (c *FallbackChain) ActiveName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.Name()
}

// publish runs on the OS input-delivery thread and must never block: a full
// stream drops the event rather than stalling input delivery.
func (c *FallbackChain) publish(ev PenEvent) {
	if !c.accepting.Load() {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
