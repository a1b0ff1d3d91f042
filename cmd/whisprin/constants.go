package main

import "time"

// Pen signal normalization
const (
	// Hardware pressure fields (HID digitizer reports and the pointer API)
	// report pressure in device units on a 0-1024 scale.
	penPressureScale = 1024.0

	// Minimum pressure report payload. Shorter reports carry no usable
	// status/pressure fields and are dropped without emitting an event.
	hidReportMinBytes = 8

	// Pressure changes at or below this delta are suppressed while in
	// contact, to avoid flooding downstream consumers with no-op updates.
	minPressureDelta = 0.01

	// Slack on the suppression comparison. An exact-threshold step like
	// 0.50 -> 0.51 yields a float64 delta a hair above 0.01; without the
	// slack it would emit, and the threshold is meant to be strict.
	pressureDeltaSlack = 1e-9

	// Fallback pressure for mechanisms that classify contact but cannot
	// read a hardware pressure field (low-level hook, failed pointer
	// lookups). Heuristic midpoint, not physically derived.
	defaultPenPressure = 0.5
)

// Audio loop engine
const (
	// Loop wrap-around happens only on multiples of this many frames, so
	// the splice point never lands mid-block.
	loopBlockFrames = 128

	// One-pole gain smoothing window. The per-sample step is recomputed
	// from the active sample rate at construction time.
	smoothingWindow = 10 * time.Millisecond

	// Perceptual loudness exponent: gain = pressure^0.6 scales perceived
	// loudness roughly linearly with stylus force.
	perceptualExponent = 0.6

	// Volume offset clamp range (dB).
	minOffsetDb = -12.0
	maxOffsetDb = 0.0

	// Device acquisition buffer targets. The low-latency size is tried
	// first; the conservative size is the shared-mode style fallback.
	lowLatencyBufferMs   = 10
	conservativeBufferMs = 50

	// Quiet period after which an idle (non-playing) session releases the
	// device handle and sample buffers.
	defaultIdleTimeout = 5 * time.Second

	defaultOutputSampleRate = 48000

	resampleQuality = 10
)

// Daemon defaults
const (
	defaultSamplePath    = "assets/loop.wav"
	defaultIPCSocketPath = "/tmp/whisprin.sock"
	defaultWSPort        = 3124

	// Unified pen event stream buffer. Sends from the OS input thread are
	// non-blocking; events are dropped when consumers fall this far behind.
	penEventBufferSize = 64
)
