package main

import (
	"math"
	"sync/atomic"
)

// atomicFloat64 is a wait-free float exchange built on atomic.Uint64.
// The audio render path must never take a lock shared with the input
// thread, so every cross-thread scalar here goes through one of these.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat64) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// GainShaper converts normalized pressure into output gain and applies it,
// smoothed, to sample blocks in place.
//
//	perceptual = pressure^0.6
//	target     = perceptual * 10^(offsetDb/20)
//
// Smoothing is a one-pole low-pass run per output sample:
//
//	current += (1/N) * (target - current)
//
// with N covering ~10ms at the stream's interleaved sample rate, recomputed
// at construction. A step change reaches ~95% of target within 3N samples
// (~30ms); the filter is deliberately rate-dependent rather than a fixed
// time constant.
//
// SetPressure and SetOffsetDb run on the input-forwarding path; Apply runs
// on the audio render thread. The two sides share only atomics.
type GainShaper struct {
	target       atomicFloat64
	current      atomicFloat64
	offsetDb     atomicFloat64
	lastPressure atomicFloat64

	step float64 // 1/N, fixed after construction
}

// NewGainShaper sizes the smoothing window for the given output format.
func NewGainShaper(sampleRate, channels int) *GainShaper {
	if channels < 1 {
		channels = 1
	}
	n := int(float64(sampleRate*channels) * smoothingWindow.Seconds())
	if n < 1 {
		n = 1
	}
	return &GainShaper{step: 1.0 / float64(n)}
}

// SetPressure updates the target gain from a pressure sample. Input is
// clamped, never rejected.
func (g *GainShaper) SetPressure(p float64) {
	p = clampPressure(p)
	g.lastPressure.Store(p)
	g.storeTarget(p)
}

// SetOffsetDb updates the gain offset, clamped to [-12, 0] dB, and rebases
// the target on the last seen pressure so the change takes effect without
// waiting for the next pen event.
func (g *GainShaper) SetOffsetDb(db float64) {
	if db < minOffsetDb {
		db = minOffsetDb
	}
	if db > maxOffsetDb {
		db = maxOffsetDb
	}
	g.offsetDb.Store(db)
	g.storeTarget(g.lastPressure.Load())
}

func (g *GainShaper) storeTarget(pressure float64) {
	perceptual := math.Pow(pressure, perceptualExponent)
	offset := math.Pow(10, g.offsetDb.Load()/20)
	g.target.Store(perceptual * offset)
}

// OffsetDb returns the effective (clamped) offset.
func (g *GainShaper) OffsetDb() float64 {
	return g.offsetDb.Load()
}

// TargetGain returns the current smoothing target.
func (g *GainShaper) TargetGain() float64 {
	return g.target.Load()
}

// CurrentGain returns the smoothed gain as of the last rendered block.
func (g *GainShaper) CurrentGain() float64 {
	return g.current.Load()
}

// Reset zeroes both target and smoothed gain. Called on session Stop, while
// the device is paused and no render is in flight.
func (g *GainShaper) Reset() {
	g.lastPressure.Store(0)
	g.target.Store(0)
	g.current.Store(0)
}

// Apply runs the smoothing filter across samples, multiplying in place.
// Audio render thread only; no locks, no allocation.
func (g *GainShaper) Apply(samples []float32) {
	target := g.target.Load()
	cur := g.current.Load()
	step := g.step

	for i := range samples {
		cur += step * (target - cur)
		samples[i] = float32(float64(samples[i]) * cur)
	}

	g.current.Store(cur)
}
