// Package audio decodes narration chunks into PCM buffers the playback clock
// can schedule.
package audio

import "time"

// Buffer is one decoded audio segment. Samples are interleaved signed 16-bit
// PCM. A Buffer is never mutated after decoding.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Frames is the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

func (b *Buffer) Length() time.Duration {
	return time.Duration(b.Duration() * float64(time.Second))
}

// Slice returns the part of the buffer starting offset seconds in. The
// result shares storage with b.
func (b *Buffer) Slice(offset float64) *Buffer {
	if offset <= 0 || b == nil {
		return b
	}
	frame := int(offset * float64(b.SampleRate))
	if frame >= b.Frames() {
		return &Buffer{SampleRate: b.SampleRate, Channels: b.Channels}
	}
	return &Buffer{
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
		Samples:    b.Samples[frame*b.Channels:],
	}
}
