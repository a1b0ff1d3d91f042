package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Orchestrator is the thin gate between the provider fallback chain and the
// audio session. While Enabled it forwards Down -> Start, Move ->
// SetPressure, Up -> Stop; while Disabled, events are dropped without side
// effects and the session is forced stopped.
//
// It also fronts the control surface consumed by the tray UI equivalent
// (IPC socket and status WebSocket): enable/disable, volume offset, status
// snapshots, change notification.
type Orchestrator struct {
	logger  *slog.Logger
	chain   *FallbackChain
	session *AudioSession

	mu           sync.Mutex
	enabled      bool
	lastPressure float64

	// notify is invoked with a fresh snapshot after every externally visible
	// state change; the WS hub fans it out. May be nil.
	notify func(StatusSnapshot)
}

func NewOrchestrator(chain *FallbackChain, session *AudioSession, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		logger:  logger,
		chain:   chain,
		session: session,
		enabled: true,
	}
}

// SetNotify installs the status change callback. Call before Run.
func (o *Orchestrator) SetNotify(fn func(StatusSnapshot)) {
	o.notify = fn
}

// Run consumes the unified pen event stream until ctx is canceled or the
// stream closes. Intended to run as its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping (context canceled)")
			return nil
		case ev, ok := <-o.chain.Events():
			if !ok {
				o.logger.Info("orchestrator stopping (event stream closed)")
				return nil
			}
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) handle(ev PenEvent) {
	o.mu.Lock()
	if !o.enabled {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	switch ev := ev.(type) {
	case PenDown:
		if err := o.session.Start(ev.Pressure); err != nil {
			if !errors.Is(err, ErrSessionDisposed) {
				o.logger.Warn("session start failed", "error", err)
			}
			return
		}
		o.setLastPressure(ev.Pressure)

	case PenMove:
		o.session.SetPressure(ev.Pressure)
		o.setLastPressure(ev.Pressure)

	case PenUp:
		o.session.Stop()
		o.setLastPressure(0)
	}

	o.notifyStatus()
}

// Apply executes one control action. Unknown actions are ignored.
func (o *Orchestrator) Apply(a Action) {
	switch a := a.(type) {
	case Enable:
		o.Enable()
	case Disable:
		o.Disable()
	case SetVolumeOffset:
		o.SetVolumeOffsetDb(a.Db)
	}
}

// Enable opens the gate.
func (o *Orchestrator) Enable() {
	o.mu.Lock()
	changed := !o.enabled
	o.enabled = true
	o.mu.Unlock()

	if changed {
		o.logger.Info("pen playback enabled")
		o.notifyStatus()
	}
}

// Disable closes the gate and forces the session to stop.
func (o *Orchestrator) Disable() {
	o.mu.Lock()
	changed := o.enabled
	o.enabled = false
	o.lastPressure = 0
	o.mu.Unlock()

	o.session.Stop()
	if changed {
		o.logger.Info("pen playback disabled")
		o.notifyStatus()
	}
}

// IsEnabled reports the gate state.
func (o *Orchestrator) IsEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// SetVolumeOffsetDb forwards the clamped offset to the session.
func (o *Orchestrator) SetVolumeOffsetDb(db float64) {
	o.session.SetVolumeOffsetDb(db)
	o.notifyStatus()
}

// VolumeOffsetDb returns the effective offset.
func (o *Orchestrator) VolumeOffsetDb() float64 {
	return o.session.VolumeOffsetDb()
}

// Status builds a point-in-time snapshot for external consumers.
func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.Lock()
	enabled := o.enabled
	pressure := o.lastPressure
	o.mu.Unlock()

	return StatusSnapshot{
		Enabled:        enabled,
		ActiveProvider: o.chain.ActiveName(),
		OffsetDb:       o.session.VolumeOffsetDb(),
		Playing:        o.session.Playing(),
		LastPressure:   pressure,
	}
}

func (o *Orchestrator) setLastPressure(p float64) {
	o.mu.Lock()
	o.lastPressure = p
	o.mu.Unlock()
}

func (o *Orchestrator) notifyStatus() {
	if o.notify == nil {
		return
	}
	o.notify(o.Status())
}
