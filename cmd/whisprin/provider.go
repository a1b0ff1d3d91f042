package main

import (
	"log/slog"
	"sync"
)

// ============================================================================
// Input Providers
// ============================================================================
// A Provider wraps one OS acquisition mechanism behind a uniform contract.
// Four mechanisms exist, most capable first:
//
//	pointer   modern pointer API (hardware pressure, lowest latency)
//	rawhid    raw-input registration for digitizer HID reports
//	hook      process-wide low-level pointer hook (tag heuristic, no pressure)
//	wintab    legacy tablet driver API
//
// Each provider composes a registration strategy (the OS-specific half,
// selected by build tag) with the portable contact state machine. The
// strategy decodes raw OS traffic into (contact, pressure) samples on the
// OS delivery thread; the tracker turns those into PenEvents synchronously
// on the same thread.
// ============================================================================

// Provider is the uniform start/stop/event contract over one acquisition
// mechanism.
type Provider interface {
	// Name identifies the mechanism in logs and status output.
	Name() string

	// Priority orders providers in the fallback chain; lower is tried first.
	Priority() int

	// Start registers with the OS mechanism and begins delivering events to
	// emit. It returns false on registration failure without panicking;
	// failure is the signal for the chain to try the next provider.
	Start(emit func(PenEvent)) bool

	// Stop unregisters. Idempotent; safe when never started.
	Stop()

	// Active reports whether the provider currently owns its OS resource.
	Active() bool
}

// reportSink receives decoded (contact, pressure) samples from a
// registration strategy. Pressure is normalized before it reaches the sink.
type reportSink func(contact bool, pressure float64)

// registrationStrategy is the OS-specific half of a provider: it owns the
// underlying OS resource with strict construct/destroy symmetry, decodes raw
// traffic, and pushes samples into the sink.
type registrationStrategy interface {
	register(sink reportSink) error
	unregister()
}

// penProvider composes a strategy with a contact tracker.
type penProvider struct {
	name     string
	priority int
	strategy registrationStrategy
	logger   *slog.Logger

	mu      sync.Mutex
	active  bool
	tracker contactTracker
}

func newPenProvider(name string, priority int, strategy registrationStrategy, logger *slog.Logger) *penProvider {
	return &penProvider{
		name:     name,
		priority: priority,
		strategy: strategy,
		logger:   logger,
	}
}

func (p *penProvider) Name() string  { return p.name }
func (p *penProvider) Priority() int { return p.priority }

func (p *penProvider) Start(emit func(PenEvent)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return true
	}

	p.tracker.reset()

	// The sink runs on the OS input-delivery thread. The tracker is owned by
	// that thread while the provider is active; the mutex here guards only
	// start/stop transitions, never the per-event path.
	if err := p.strategy.register(func(contact bool, pressure float64) {
		p.tracker.update(contact, pressure, emit)
	}); err != nil {
		p.logger.Debug("provider registration failed", "provider", p.name, "error", err)
		return false
	}

	p.active = true
	return true
}

func (p *penProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}

	p.strategy.unregister()
	p.tracker.reset()
	p.active = false
}

func (p *penProvider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ============================================================================
// Concrete providers
// ============================================================================
// The strategy constructors are platform-specific (provider_windows.go /
// provider_stub.go); on platforms without the mechanism, registration fails
// and the chain falls through.
// ============================================================================

// newPointerProvider senses pen input through the modern pointer API.
func newPointerProvider(filter WindowFilter, logger *slog.Logger) Provider {
	return newPenProvider("pointer", 0, newPointerStrategy(filter, logger), logger)
}

// newRawHIDProvider registers for digitizer HID reports via raw input.
func newRawHIDProvider(filter WindowFilter, logger *slog.Logger) Provider {
	return newPenProvider("rawhid", 1, newRawHIDStrategy(filter, logger), logger)
}

// newHookProvider observes all pointer traffic through a process-wide
// low-level hook and classifies pen events by extra-info tag signature.
func newHookProvider(classifier TagClassifier, filter WindowFilter, logger *slog.Logger) Provider {
	if classifier == nil {
		classifier = permissiveTagClassifier{}
	}
	return newPenProvider("hook", 2, newHookStrategy(classifier, filter, logger), logger)
}

// newWintabProvider talks to the legacy tablet driver API.
func newWintabProvider(logger *slog.Logger) Provider {
	return newPenProvider("wintab", 3, newWintabStrategy(logger), logger)
}

// defaultProviders returns the full provider set in fallback order.
func defaultProviders(classifier TagClassifier, filter WindowFilter, logger *slog.Logger) []Provider {
	return []Provider{
		newPointerProvider(filter, logger),
		newRawHIDProvider(filter, logger),
		newHookProvider(classifier, filter, logger),
		newWintabProvider(logger),
	}
}
