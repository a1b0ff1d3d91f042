package main

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// outputDevice is the session's handle on the output hardware buffer.
// Abstracted so acquisition failure and disposal can be tested without a
// sound card.
type outputDevice interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

// deviceOpener acquires an output device pulling samples from src at the
// given format and target buffer size.
type deviceOpener func(sampleRate, channels, bufferMs int, src io.Reader) (outputDevice, error)

// sessionReader is the pull path the device drains on its render thread:
// loop stream read, then gain shaping in place, then float32 LE encoding.
// The scratch buffer is reused across calls; after the first pull at the
// device's block size there is no allocation on this path.
type sessionReader struct {
	loop    *LoopStream
	shaper  *GainShaper
	scratch []float32
}

func newSessionReader(loop *LoopStream, shaper *GainShaper) *sessionReader {
	return &sessionReader{loop: loop, shaper: shaper}
}

func (r *sessionReader) Read(p []byte) (int, error) {
	n := len(p) / 4
	if n == 0 {
		return 0, nil
	}

	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	buf := r.scratch[:n]

	r.loop.Read(buf)
	r.shaper.Apply(buf)

	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	return n * 4, nil
}

// ============================================================================
// oto-backed device
// ============================================================================

// An oto context binds to the OS mixer once per process and cannot be torn
// down, so it is cached here. Idle disposal releases the player (and with it
// the pull buffers); the context is reused on the next acquisition.
var sharedOtoContext struct {
	mu  sync.Mutex
	ctx *oto.Context
}

type otoDevice struct {
	player *oto.Player
}

// openOtoDevice acquires the output device through oto. The first call
// creates the context at the requested buffer size; bufferMs is the
// latency/robustness trade the session controls (small first, conservative
// on retry).
func openOtoDevice(sampleRate, channels, bufferMs int, src io.Reader) (outputDevice, error) {
	sharedOtoContext.mu.Lock()
	defer sharedOtoContext.mu.Unlock()

	if sharedOtoContext.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(bufferMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		<-ready
		sharedOtoContext.ctx = ctx
	}

	return &otoDevice{player: sharedOtoContext.ctx.NewPlayer(src)}, nil
}

func (d *otoDevice) Play() {
	if !d.player.IsPlaying() {
		d.player.Play()
	}
}

func (d *otoDevice) Pause() {
	if d.player.IsPlaying() {
		d.player.Pause()
	}
}

func (d *otoDevice) IsPlaying() bool {
	return d.player.IsPlaying()
}

func (d *otoDevice) Close() error {
	return d.player.Close()
}
