package main

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// mockDevice records play/pause/close calls for session tests.
type mockDevice struct {
	mu      sync.Mutex
	playing bool
	plays   int
	pauses  int
	closed  bool
}

func (d *mockDevice) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
	d.plays++
}

func (d *mockDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.pauses++
}

func (d *mockDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

func (d *mockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// mockOpener scripts device acquisition outcomes per attempt.
type mockOpener struct {
	mu       sync.Mutex
	failures int // fail this many acquisition attempts before succeeding
	attempts []int
	devices  []*mockDevice
}

func (o *mockOpener) open(sampleRate, channels, bufferMs int, src io.Reader) (outputDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, bufferMs)
	if o.failures > 0 {
		o.failures--
		return nil, errors.New("device busy")
	}
	d := &mockDevice{}
	o.devices = append(o.devices, d)
	return d, nil
}

func testSample() (*SampleBuffer, error) {
	return &SampleBuffer{
		Data:       make([]float32, loopBlockFrames*4),
		SampleRate: 48000,
		Channels:   1,
	}, nil
}

func newTestSession(opener *mockOpener, idle time.Duration) *AudioSession {
	return NewAudioSession(SessionConfig{
		IdleTimeout: idle,
		LoadSample:  testSample,
		OpenDevice:  opener.open,
		Logger:      discardLogger(),
	})
}

// TestAudioSession_LazyInit tests that nothing is acquired until the first
// Start, and that Start acquires and plays.
func TestAudioSession_LazyInit(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	if len(opener.attempts) != 0 {
		t.Fatal("device acquired before first Start")
	}

	if err := s.Start(0.5); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if len(opener.devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(opener.devices))
	}
	if !s.Playing() {
		t.Error("Playing() = false after Start")
	}
	if opener.devices[0].plays != 1 {
		t.Errorf("plays = %d, want 1", opener.devices[0].plays)
	}
}

// TestAudioSession_StartWhilePlaying tests that a second Start does not
// re-trigger device playback.
func TestAudioSession_StartWhilePlaying(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	s.Start(0.5)
	s.Start(0.7)

	if opener.devices[0].plays != 1 {
		t.Errorf("plays = %d, want 1 (Start while playing only updates pressure)", opener.devices[0].plays)
	}
}

// TestAudioSession_BufferFallback tests the low-latency to conservative
// buffer retry on first-attempt failure.
func TestAudioSession_BufferFallback(t *testing.T) {
	opener := &mockOpener{failures: 1}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	if err := s.Start(0.5); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	want := []int{lowLatencyBufferMs, conservativeBufferMs}
	if len(opener.attempts) != 2 || opener.attempts[0] != want[0] || opener.attempts[1] != want[1] {
		t.Errorf("attempts = %v, want %v", opener.attempts, want)
	}
	if !s.Playing() {
		t.Error("session should be playing on the conservative buffer")
	}
}

// TestAudioSession_TotalAcquisitionFailure tests that exhausting both buffer
// sizes drops the request silently and a later Start retries from scratch.
func TestAudioSession_TotalAcquisitionFailure(t *testing.T) {
	opener := &mockOpener{failures: 2}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	if err := s.Start(0.5); err != nil {
		t.Fatalf("Start() = %v, want nil on total failure", err)
	}
	if s.Playing() {
		t.Error("Playing() = true after total acquisition failure")
	}

	// Device freed up; next contact initializes normally.
	if err := s.Start(0.5); err != nil {
		t.Fatalf("retry Start() = %v", err)
	}
	if !s.Playing() {
		t.Error("retry should have acquired and played")
	}
}

// TestAudioSession_StopPausesAndResets tests the Playing -> Ready
// transition.
func TestAudioSession_StopPausesAndResets(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	s.Start(0.5)
	s.Stop()

	if s.Playing() {
		t.Error("Playing() = true after Stop")
	}
	if opener.devices[0].pauses != 1 {
		t.Errorf("pauses = %d, want 1", opener.devices[0].pauses)
	}
	if opener.devices[0].closed {
		t.Error("Stop must not release the device; only the idle timer does")
	}
}

// TestAudioSession_StopWhenNotPlaying tests Stop as a no-op before any
// contact.
func TestAudioSession_StopWhenNotPlaying(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	s.Stop()
	if len(opener.attempts) != 0 {
		t.Error("Stop before first Start must not acquire a device")
	}
}

// TestAudioSession_IdleDisposal tests that a quiet Ready session releases
// the device and reinitializes on the next contact.
func TestAudioSession_IdleDisposal(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, 30*time.Millisecond)
	defer s.Close()

	s.Start(0.5)
	s.Stop()

	time.Sleep(100 * time.Millisecond)

	if !opener.devices[0].closed {
		t.Fatal("idle timer did not release the device")
	}

	// Next contact builds a fresh device.
	if err := s.Start(0.4); err != nil {
		t.Fatalf("Start after disposal = %v", err)
	}
	if len(opener.devices) != 2 {
		t.Fatalf("devices = %d, want 2 after reinit", len(opener.devices))
	}
	if !s.Playing() {
		t.Error("session should be playing after reinit")
	}
}

// TestAudioSession_IdleTimerLosesRaceToStart tests that contact resuming
// before the timer fires keeps the device alive.
func TestAudioSession_IdleTimerLosesRaceToStart(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, 60*time.Millisecond)
	defer s.Close()

	s.Start(0.5)
	s.Stop()

	time.Sleep(20 * time.Millisecond)
	s.Start(0.6) // re-arms the timer

	time.Sleep(50 * time.Millisecond)

	if opener.devices[0].closed {
		t.Error("device released while the session was playing")
	}
	if !s.Playing() {
		t.Error("session should still be playing")
	}
}

// TestAudioSession_OffsetPersistsAcrossDisposal tests that the volume offset
// survives idle disposal and is re-applied on reinit.
func TestAudioSession_OffsetPersistsAcrossDisposal(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, 30*time.Millisecond)
	defer s.Close()

	s.SetVolumeOffsetDb(-6)

	s.Start(0.5)
	s.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := s.VolumeOffsetDb(); got != -6 {
		t.Errorf("VolumeOffsetDb after disposal = %v, want -6", got)
	}

	s.Start(0.5)
	if got := s.VolumeOffsetDb(); got != -6 {
		t.Errorf("VolumeOffsetDb after reinit = %v, want -6", got)
	}
}

// TestAudioSession_OffsetClamped tests offset clamping at the session
// surface.
func TestAudioSession_OffsetClamped(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, time.Minute)
	defer s.Close()

	s.SetVolumeOffsetDb(-40)
	if got := s.VolumeOffsetDb(); got != minOffsetDb {
		t.Errorf("VolumeOffsetDb = %v, want %v", got, minOffsetDb)
	}
	s.SetVolumeOffsetDb(5)
	if got := s.VolumeOffsetDb(); got != maxOffsetDb {
		t.Errorf("VolumeOffsetDb = %v, want %v", got, maxOffsetDb)
	}
}

// TestAudioSession_Close tests terminal disposal semantics.
func TestAudioSession_Close(t *testing.T) {
	opener := &mockOpener{}
	s := newTestSession(opener, time.Minute)

	s.Start(0.5)
	s.Close()

	if !opener.devices[0].closed {
		t.Error("Close must release the device")
	}
	if err := s.Start(0.5); !errors.Is(err, ErrSessionDisposed) {
		t.Errorf("Start after Close = %v, want ErrSessionDisposed", err)
	}

	// These must be silent no-ops, not panics.
	s.SetPressure(0.3)
	s.Stop()
	s.Close()
}
