package main

// LoopLengthInfinite is the sentinel length of a LoopStream: the loop never
// ends, so any consumer asking for duration gets "unbounded".
const LoopLengthInfinite = -1

// LoopStream replays a fixed sample buffer indefinitely.
//
// The loop boundary is aligned down to the nearest multiple of the block
// size (128 frames) so wrap-around only ever happens at block boundaries;
// mid-block splices would need crossfading to avoid clicks. The source
// buffer is immutable and shared read-only with the owning session.
//
// Reads are exact: Read always fills the whole destination slice, wrapping
// transparently, and never fails for any requested length. Only the audio
// render thread touches a LoopStream after construction.
type LoopStream struct {
	buf     []float32 // interleaved samples, never written
	loopEnd int       // exclusive wrap point, block-aligned
	pos     int
}

// NewLoopStream wraps an interleaved sample buffer with the given channel
// count. Buffers shorter than one block loop over their full length.
func NewLoopStream(buf []float32, channels int) *LoopStream {
	if channels < 1 {
		channels = 1
	}
	blockAlign := loopBlockFrames * channels

	loopEnd := (len(buf) / blockAlign) * blockAlign
	if loopEnd == 0 {
		loopEnd = len(buf)
	}

	return &LoopStream{
		buf:     buf,
		loopEnd: loopEnd,
	}
}

// Read fills dst completely, looping over the source buffer as needed, and
// returns len(dst).
func (s *LoopStream) Read(dst []float32) int {
	if len(s.buf) == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return len(dst)
	}

	n := 0
	for n < len(dst) {
		copied := copy(dst[n:], s.buf[s.pos:s.loopEnd])
		n += copied
		s.pos += copied
		if s.pos >= s.loopEnd {
			s.pos = 0
		}
	}
	return n
}

// Position returns the current read offset within the loop region.
func (s *LoopStream) Position() int {
	return s.pos
}

// SetPosition seeks within the loop. Any out-of-range value wraps back into
// [0, loopEnd) by modulo arithmetic; it never fails.
func (s *LoopStream) SetPosition(pos int) {
	if s.loopEnd == 0 {
		s.pos = 0
		return
	}
	pos %= s.loopEnd
	if pos < 0 {
		pos += s.loopEnd
	}
	s.pos = pos
}

// LoopEnd returns the exclusive wrap point in samples.
func (s *LoopStream) LoopEnd() int {
	return s.loopEnd
}

// Length reports the stream length: always LoopLengthInfinite.
func (s *LoopStream) Length() int {
	return LoopLengthInfinite
}
