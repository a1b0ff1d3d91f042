package main

import "testing"

// sequence returns an interleaved buffer of n samples 0,1,2,...
func sequence(n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(i)
	}
	return buf
}

// TestLoopStream_ExactRoundTrip tests that reading exactly the loop length
// several times reproduces the buffer byte for byte, with the position back
// at the start after each pass.
func TestLoopStream_ExactRoundTrip(t *testing.T) {
	n := loopBlockFrames * 4
	src := sequence(n)
	s := NewLoopStream(src, 1)

	if s.LoopEnd() != n {
		t.Fatalf("LoopEnd() = %d, want %d", s.LoopEnd(), n)
	}

	dst := make([]float32, n)
	for pass := 0; pass < 3; pass++ {
		if got := s.Read(dst); got != n {
			t.Fatalf("pass %d: Read = %d, want %d", pass, got, n)
		}
		for i := range dst {
			if dst[i] != src[i] {
				t.Fatalf("pass %d: sample %d = %v, want %v", pass, i, dst[i], src[i])
			}
		}
		if s.Position() != 0 {
			t.Fatalf("pass %d: position = %d, want 0", pass, s.Position())
		}
	}
}

// TestLoopStream_WrapMidRead tests a read spanning the loop boundary.
func TestLoopStream_WrapMidRead(t *testing.T) {
	n := loopBlockFrames
	src := sequence(n)
	s := NewLoopStream(src, 1)

	s.SetPosition(n - 10)

	dst := make([]float32, 25)
	s.Read(dst)

	for i := 0; i < 10; i++ {
		if dst[i] != src[n-10+i] {
			t.Fatalf("pre-wrap sample %d = %v, want %v", i, dst[i], src[n-10+i])
		}
	}
	for i := 10; i < 25; i++ {
		if dst[i] != src[i-10] {
			t.Fatalf("post-wrap sample %d = %v, want %v", i, dst[i], src[i-10])
		}
	}
	if s.Position() != 15 {
		t.Errorf("position = %d, want 15", s.Position())
	}
}

// TestLoopStream_BlockAlignment tests that the wrap point aligns down to the
// block size, dropping the trailing partial block.
func TestLoopStream_BlockAlignment(t *testing.T) {
	// One channel: 2 full blocks plus 57 stray samples.
	s := NewLoopStream(sequence(loopBlockFrames*2+57), 1)
	if got := s.LoopEnd(); got != loopBlockFrames*2 {
		t.Errorf("LoopEnd() = %d, want %d", got, loopBlockFrames*2)
	}

	// Stereo: alignment is in frames, so samples align to 2*blockFrames.
	s = NewLoopStream(sequence(loopBlockFrames*2*3+5), 2)
	if got := s.LoopEnd(); got != loopBlockFrames*2*3 {
		t.Errorf("stereo LoopEnd() = %d, want %d", got, loopBlockFrames*2*3)
	}
}

// TestLoopStream_ShortBuffer tests that a buffer below one block still loops
// over its full length rather than being silenced.
func TestLoopStream_ShortBuffer(t *testing.T) {
	src := sequence(10)
	s := NewLoopStream(src, 1)

	if s.LoopEnd() != 10 {
		t.Fatalf("LoopEnd() = %d, want 10", s.LoopEnd())
	}

	dst := make([]float32, 25)
	s.Read(dst)
	for i := range dst {
		if dst[i] != src[i%10] {
			t.Fatalf("sample %d = %v, want %v", i, dst[i], src[i%10])
		}
	}
}

// TestLoopStream_SetPositionModulo tests that any seek value wraps into
// range, including negatives.
func TestLoopStream_SetPositionModulo(t *testing.T) {
	s := NewLoopStream(sequence(loopBlockFrames), 1)

	cases := []struct {
		in   int
		want int
	}{
		{0, 0},
		{5, 5},
		{loopBlockFrames, 0},
		{loopBlockFrames + 3, 3},
		{-1, loopBlockFrames - 1},
		{-loopBlockFrames - 2, loopBlockFrames - 2},
	}
	for _, tc := range cases {
		s.SetPosition(tc.in)
		if s.Position() != tc.want {
			t.Errorf("SetPosition(%d): position = %d, want %d", tc.in, s.Position(), tc.want)
		}
	}
}

// TestLoopStream_InfiniteLength tests the length sentinel.
func TestLoopStream_InfiniteLength(t *testing.T) {
	s := NewLoopStream(sequence(loopBlockFrames), 1)
	if s.Length() != LoopLengthInfinite {
		t.Errorf("Length() = %d, want %d", s.Length(), LoopLengthInfinite)
	}
}

// TestLoopStream_EmptyBuffer tests that an empty source renders silence
// instead of failing.
func TestLoopStream_EmptyBuffer(t *testing.T) {
	s := NewLoopStream(nil, 1)
	dst := []float32{9, 9, 9}
	if got := s.Read(dst); got != 3 {
		t.Fatalf("Read = %d, want 3", got)
	}
	for i, v := range dst {
		if v != 0 {
			t.Errorf("sample %d = %v, want silence", i, v)
		}
	}
}
