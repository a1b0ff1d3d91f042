package main

import (
	"encoding/binary"
	"math"
	"testing"
)

// TestSessionReader_EncodesFloat32LE tests the device pull path: loop read,
// gain applied, float32 little-endian output.
func TestSessionReader_EncodesFloat32LE(t *testing.T) {
	src := make([]float32, loopBlockFrames)
	for i := range src {
		src[i] = 1
	}
	loop := NewLoopStream(src, 1)
	shaper := NewGainShaper(48000, 1)
	shaper.SetPressure(1)

	r := newSessionReader(loop, shaper)

	buf := make([]byte, 64*4)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read() = %d, want %d", n, len(buf))
	}

	// The shaper ramps from silence; samples must be finite, monotonically
	// rising, and bounded by the unity source.
	prev := float32(-1)
	for i := 0; i < 64; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		if v < prev || v > 1 {
			t.Fatalf("sample %d = %v, want rising within (0,1]", i, v)
		}
		prev = v
	}
}

// TestSessionReader_PartialWord tests that trailing bytes short of a full
// sample are left unwritten rather than corrupted.
func TestSessionReader_PartialWord(t *testing.T) {
	loop := NewLoopStream(make([]float32, loopBlockFrames), 1)
	r := newSessionReader(loop, NewGainShaper(48000, 1))

	buf := make([]byte, 10) // 2 full samples + 2 stray bytes
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 8 {
		t.Errorf("Read() = %d, want 8", n)
	}
}
