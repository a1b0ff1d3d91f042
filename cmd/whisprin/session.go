package main

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionDisposed is returned by Start after the session has been
// permanently closed. All other operations degrade to no-ops instead.
var ErrSessionDisposed = errors.New("audio session disposed")

type sessionState int

const (
	sessionUninitialized sessionState = iota
	sessionReady
	sessionPlaying
	sessionDisposed
)

// SessionConfig configures an AudioSession. LoadSample and OpenDevice are
// injectable for tests; nil selects the WAV loader and the oto device.
type SessionConfig struct {
	SamplePath       string
	OutputSampleRate int
	IdleTimeout      time.Duration
	VolumeOffsetDb   float64

	LoadSample func() (*SampleBuffer, error)
	OpenDevice deviceOpener
	Logger     *slog.Logger
}

// AudioSession owns the output device handle and the loop/shaper pair built
// around the sample asset.
//
// State machine: Uninitialized -> Ready -> Playing -> Ready -> Uninitialized,
// with a terminal Disposed. Initialization is lazy on the first Start so an
// idle daemon holds no device handle; the idle timer returns the session to
// Uninitialized after a quiet period, trading tens of milliseconds of
// re-initialization latency on the next contact for a near-zero idle
// footprint.
//
// The mutex guards session state transitions only. The audio render path
// (sessionReader pulled by the device) never takes it; the only state shared
// with that path is the shaper's atomics.
type AudioSession struct {
	id          uuid.UUID
	logger      *slog.Logger
	loadSample  func() (*SampleBuffer, error)
	openDevice  deviceOpener
	idleTimeout time.Duration

	mu       sync.Mutex
	state    sessionState
	device   outputDevice
	loop     *LoopStream
	shaper   *GainShaper
	idle     *time.Timer
	offsetDb float64 // persists across dispose/reinit cycles
}

// NewAudioSession builds a session; no device or buffer is acquired until
// the first Start.
func NewAudioSession(cfg SessionConfig) *AudioSession {
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = defaultOutputSampleRate
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	load := cfg.LoadSample
	if load == nil {
		path, rate := cfg.SamplePath, cfg.OutputSampleRate
		load = func() (*SampleBuffer, error) {
			return LoadLoopSample(path, rate)
		}
	}
	open := cfg.OpenDevice
	if open == nil {
		open = openOtoDevice
	}

	offset := clampOffsetDb(cfg.VolumeOffsetDb)

	id := uuid.New()
	return &AudioSession{
		id:          id,
		logger:      cfg.Logger.With("session_id", id),
		loadSample:  load,
		openDevice:  open,
		idleTimeout: cfg.IdleTimeout,
		offsetDb:    offset,
	}
}

// Start begins (or resumes) playback at the given pressure, lazily acquiring
// the sample buffer and output device on first use. Total device acquisition
// failure is not an error: the request is dropped silently and a later Start
// retries from scratch. Only use-after-dispose fails.
func (s *AudioSession) Start(pressure float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case sessionDisposed:
		return ErrSessionDisposed
	case sessionUninitialized:
		if !s.initLocked() {
			return nil
		}
	}

	s.shaper.SetPressure(pressure)
	if s.state != sessionPlaying {
		s.device.Play()
		s.state = sessionPlaying
	}
	s.restartIdleLocked()
	return nil
}

// SetPressure forwards a pressure update to the shaper. No-op unless
// currently playing; in particular it may race harmlessly with teardown.
func (s *AudioSession) SetPressure(pressure float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != sessionPlaying {
		return
	}
	s.shaper.SetPressure(pressure)
	s.restartIdleLocked()
}

// Stop halts playback if playing and (re)starts the idle-disposal timer.
// No-op when uninitialized or disposed.
func (s *AudioSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case sessionPlaying:
		s.device.Pause()
		s.shaper.Reset()
		s.state = sessionReady
		s.restartIdleLocked()
	case sessionReady:
		s.restartIdleLocked()
	}
}

// SetVolumeOffsetDb updates the gain offset, clamped to [-12, 0]. The value
// survives idle disposal and is re-applied on the next initialization.
func (s *AudioSession) SetVolumeOffsetDb(db float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offsetDb = clampOffsetDb(db)
	if s.shaper != nil {
		s.shaper.SetOffsetDb(s.offsetDb)
	}
}

// VolumeOffsetDb returns the effective offset.
func (s *AudioSession) VolumeOffsetDb() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsetDb
}

// Playing reports whether the session is currently rendering.
func (s *AudioSession) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sessionPlaying
}

// Close disposes the session permanently. Subsequent Start calls fail with
// ErrSessionDisposed; SetPressure and Stop become silent no-ops.
func (s *AudioSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sessionDisposed {
		return
	}
	if s.state == sessionPlaying {
		s.device.Pause()
	}
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	s.releaseLocked()
	s.state = sessionDisposed
}

// initLocked performs lazy initialization: sample load, loop/shaper
// construction, device acquisition with low-latency-then-conservative
// buffer fallback. Returns false (leaving the session Uninitialized) when
// the device cannot be acquired at all.
func (s *AudioSession) initLocked() bool {
	sample, err := s.loadSample()
	if err != nil {
		s.logger.Warn("loop sample unavailable, dropping playback", "error", err)
		return false
	}

	shaper := NewGainShaper(sample.SampleRate, sample.Channels)
	shaper.SetOffsetDb(s.offsetDb)
	loop := NewLoopStream(sample.Data, sample.Channels)
	reader := newSessionReader(loop, shaper)

	dev, err := s.openDevice(sample.SampleRate, sample.Channels, lowLatencyBufferMs, reader)
	if err != nil {
		s.logger.Warn("low-latency device acquisition failed, retrying with conservative buffer", "error", err)
		dev, err = s.openDevice(sample.SampleRate, sample.Channels, conservativeBufferMs, reader)
	}
	if err != nil {
		s.logger.Warn("audio device unavailable, dropping playback", "error", err)
		return false
	}

	s.device = dev
	s.loop = loop
	s.shaper = shaper
	s.state = sessionReady

	s.logger.Debug("audio session initialized",
		"sample_rate", sample.SampleRate,
		"channels", sample.Channels,
		"frames", sample.Frames())
	return true
}

// releaseLocked frees the device handle and all buffers.
func (s *AudioSession) releaseLocked() {
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			s.logger.Debug("device close", "error", err)
		}
		s.device = nil
	}
	s.loop = nil
	s.shaper = nil
	if s.state != sessionDisposed {
		s.state = sessionUninitialized
	}
}

// restartIdleLocked arms or re-arms the idle-disposal timer.
func (s *AudioSession) restartIdleLocked() {
	if s.idle == nil {
		s.idle = time.AfterFunc(s.idleTimeout, s.onIdle)
		return
	}
	s.idle.Stop()
	s.idle.Reset(s.idleTimeout)
}

// onIdle fires on the timer thread and may race with Start; the session
// mutex makes disposal and (re)initialization mutually exclusive, and the
// state check below makes a timer that lost the race a no-op.
func (s *AudioSession) onIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != sessionReady {
		return
	}
	s.logger.Debug("idle timeout, releasing audio device")
	s.releaseLocked()
}

func clampOffsetDb(db float64) float64 {
	if db < minOffsetDb {
		return minOffsetDb
	}
	if db > maxOffsetDb {
		return maxOffsetDb
	}
	return db
}
