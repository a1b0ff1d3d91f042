package main

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/oov/audio/resampler"
)

// SampleBuffer is the decoded, rate-matched loop asset: interleaved float32
// samples, immutable once loaded. It is owned by the audio session for the
// session's lifetime and shared read-only with the loop stream.
type SampleBuffer struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// Frames returns the per-channel sample count.
func (b *SampleBuffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// LoadLoopSample decodes a 16-bit PCM WAV asset into float32 and resamples
// it to targetRate when the file's rate differs. Mono and stereo only.
func LoadLoopSample(path string, targetRate int) (*SampleBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("decode sample %s: not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read sample PCM: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("sample has %d channels, want mono or stereo", channels)
	}
	if len(buf.Data) == 0 {
		return nil, errors.New("sample is empty")
	}

	data := pcmToFloat32(buf)

	srcRate := int(decoder.SampleRate)
	if srcRate != targetRate {
		data = resampleInterleaved(data, channels, srcRate, targetRate)
	}

	return &SampleBuffer{
		Data:       data,
		SampleRate: targetRate,
		Channels:   channels,
	}, nil
}

// pcmToFloat32 converts a decoded 16-bit PCM buffer to normalized float32.
func pcmToFloat32(buf *audio.IntBuffer) []float32 {
	const maxInt16 = float32(math.MaxInt16)
	data := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		data[i] = float32(s) / maxInt16
	}
	return data
}

// resampleInterleaved converts interleaved samples from srcRate to dstRate,
// one resampler channel per audio channel.
func resampleInterleaved(data []float32, channels, srcRate, dstRate int) []float32 {
	frames := len(data) / channels
	outFrames := int(float64(frames)*float64(dstRate)/float64(srcRate)) + 1

	r := resampler.New(channels, srcRate, dstRate, resampleQuality)

	src := make([]float32, frames)
	dst := make([]float32, outFrames)
	out := make([][]float32, channels)

	written := 0
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < frames; i++ {
			src[i] = data[i*channels+ch]
		}
		_, w := r.ProcessFloat32(ch, src, dst)
		written = w
		out[ch] = append([]float32(nil), dst[:w]...)
	}

	mixed := make([]float32, written*channels)
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < written && i < len(out[ch]); i++ {
			mixed[i*channels+ch] = out[ch][i]
		}
	}
	return mixed
}
