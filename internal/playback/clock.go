// Package playback schedules decoded narration buffers back to back on an
// audio clock.
package playback

import "github.com/loqalabs/loqa-narrator/internal/audio"

// Clock is a monotonic audio timeline measured in seconds.
type Clock interface {
	Now() float64
	// Start plays buf from offset seconds into it, beginning at clock time
	// at (or immediately if at is already past). onEnded runs once the
	// buffer has played out, never from inside Start and never after Stop.
	Start(buf *audio.Buffer, at, offset float64, onEnded func()) Source
}

// Source is one buffer enqueued on a Clock.
type Source interface {
	Stop()
}
