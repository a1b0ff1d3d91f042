package main

import (
	"errors"
	"log/slog"
	"testing"
)

// mockProvider is a scripted Provider for chain tests.
type mockProvider struct {
	name        string
	priority    int
	startOK     bool
	startCalls  int
	stopCalls   int
	active      bool
	emit        func(PenEvent)
	stopObserve func()
}

func (m *mockProvider) Name() string  { return m.name }
func (m *mockProvider) Priority() int { return m.priority }

func (m *mockProvider) Start(emit func(PenEvent)) bool {
	m.startCalls++
	if !m.startOK {
		return false
	}
	m.emit = emit
	m.active = true
	return true
}

func (m *mockProvider) Stop() {
	m.stopCalls++
	m.active = false
	if m.stopObserve != nil {
		m.stopObserve()
	}
}

func (m *mockProvider) Active() bool { return m.active }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestFallbackChain_FirstWins tests that activation stops at the first
// provider whose Start succeeds and never touches the rest.
func TestFallbackChain_FirstWins(t *testing.T) {
	a := &mockProvider{name: "a", startOK: false}
	b := &mockProvider{name: "b", startOK: true}
	c := &mockProvider{name: "c", startOK: true}

	chain := NewFallbackChain([]Provider{a, b, c}, discardLogger())
	if err := chain.Activate(); err != nil {
		t.Fatalf("Activate() = %v", err)
	}

	if a.startCalls != 1 {
		t.Errorf("a.startCalls = %d, want 1", a.startCalls)
	}
	if b.startCalls != 1 {
		t.Errorf("b.startCalls = %d, want 1", b.startCalls)
	}
	if c.startCalls != 0 {
		t.Errorf("c was started despite b winning")
	}
	if got := chain.ActiveName(); got != "b" {
		t.Errorf("ActiveName() = %q, want %q", got, "b")
	}
	if !chain.IsActive() {
		t.Error("IsActive() = false after successful activation")
	}
}

// TestFallbackChain_Exhaustion tests ErrNoProvider when every mechanism
// fails to register.
func TestFallbackChain_Exhaustion(t *testing.T) {
	a := &mockProvider{name: "a"}
	b := &mockProvider{name: "b"}

	chain := NewFallbackChain([]Provider{a, b}, discardLogger())
	err := chain.Activate()
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("Activate() = %v, want ErrNoProvider", err)
	}
	if chain.IsActive() {
		t.Error("IsActive() = true after exhaustion")
	}
	if chain.ActiveName() != "" {
		t.Errorf("ActiveName() = %q, want empty", chain.ActiveName())
	}
}

// TestFallbackChain_EventsFlow tests that the winner's events appear on the
// unified stream.
func TestFallbackChain_EventsFlow(t *testing.T) {
	p := &mockProvider{name: "p", startOK: true}
	chain := NewFallbackChain([]Provider{p}, discardLogger())
	if err := chain.Activate(); err != nil {
		t.Fatalf("Activate() = %v", err)
	}

	p.emit(PenDown{Pressure: 0.4})

	select {
	case ev := <-chain.Events():
		down, ok := ev.(PenDown)
		if !ok || down.Pressure != 0.4 {
			t.Errorf("received %v, want PenDown{0.4}", ev)
		}
	default:
		t.Fatal("no event on the unified stream")
	}
}

// TestFallbackChain_DeactivateGatesBeforeStop tests the teardown ordering
// guarantee: by the time the provider's Stop runs, the publish gate is
// already closed, so a late OS callback cannot deliver an event.
func TestFallbackChain_DeactivateGatesBeforeStop(t *testing.T) {
	p := &mockProvider{name: "p", startOK: true}
	chain := NewFallbackChain([]Provider{p}, discardLogger())
	if err := chain.Activate(); err != nil {
		t.Fatalf("Activate() = %v", err)
	}

	// Simulate a straggler callback arriving during Stop.
	p.stopObserve = func() {
		p.emit(PenMove{Pressure: 0.9})
	}

	chain.Deactivate()

	if p.stopCalls != 1 {
		t.Errorf("stopCalls = %d, want 1", p.stopCalls)
	}
	select {
	case ev := <-chain.Events():
		t.Errorf("event %v delivered after deactivation began", ev)
	default:
	}
}

// TestFallbackChain_DeactivateIdempotent tests Deactivate with no prior
// activation and double deactivation.
func TestFallbackChain_DeactivateIdempotent(t *testing.T) {
	p := &mockProvider{name: "p", startOK: true}
	chain := NewFallbackChain([]Provider{p}, discardLogger())

	chain.Deactivate() // never activated

	if err := chain.Activate(); err != nil {
		t.Fatalf("Activate() = %v", err)
	}
	chain.Deactivate()
	chain.Deactivate()

	if p.stopCalls != 1 {
		t.Errorf("stopCalls = %d, want 1", p.stopCalls)
	}
}

// TestFallbackChain_DropsWhenFull tests that a full stream drops rather than
// blocks the delivery thread.
func TestFallbackChain_DropsWhenFull(t *testing.T) {
	p := &mockProvider{name: "p", startOK: true}
	chain := NewFallbackChain([]Provider{p}, discardLogger())
	if err := chain.Activate(); err != nil {
		t.Fatalf("Activate() = %v", err)
	}

	// Overfill the buffered stream; the excess must not block.
	for i := 0; i < penEventBufferSize+16; i++ {
		p.emit(PenMove{Pressure: 0.5})
	}

	drained := 0
	for {
		select {
		case <-chain.Events():
			drained++
			continue
		default:
		}
		break
	}
	if drained != penEventBufferSize {
		t.Errorf("drained %d events, want %d buffered", drained, penEventBufferSize)
	}
}
