package playback

import (
	"errors"
	"sync"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

var ErrNothingCached = errors.New("no decoded audio cached")

// State is a point-in-time view of the scheduler.
type State struct {
	Buffers    int
	Total      float64
	Position   float64
	Offset     float64
	Playing    bool
	Active     int
	StreamDone bool
}

type scheduled struct {
	index  int
	source Source
}

// Scheduler owns the ordered buffer cache for one narration and the sources
// currently enqueued on the clock. Buffer i+1 always starts exactly where
// buffer i ends on the clock timeline.
//
// onFinished is only ever called from clock callbacks, never from inside a
// Scheduler method; synchronous methods report completion through their
// return value instead.
type Scheduler struct {
	mu         sync.Mutex
	clock      Clock
	onFinished func()

	buffers []*audio.Buffer
	starts  []float64 // media time at which buffers[i] begins
	total   float64

	sources    []scheduled
	generation uint64

	startTime float64 // clock time corresponding to media time 0
	nextStart float64 // clock time at which the next buffer should begin
	nextIndex int

	playing    bool
	anchored   bool
	streamDone bool
	offset     float64
}

func NewScheduler(clock Clock, onFinished func()) *Scheduler {
	return &Scheduler{clock: clock, onFinished: onFinished}
}

// StartLive arms live scheduling: the next appended buffer anchors playback
// at the current clock time and later buffers queue behind it.
func (s *Scheduler) StartLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSourcesLocked()
	s.playing = true
	s.anchored = false
	s.offset = 0
	s.nextIndex = len(s.buffers)
}

// Append caches buf and, while playing, schedules it. It returns the
// buffer's index and whether it was put on the clock.
func (s *Scheduler) Append(buf *audio.Buffer) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.buffers)
	s.buffers = append(s.buffers, buf)
	s.starts = append(s.starts, s.total)
	s.total += buf.Duration()
	if !s.playing {
		return idx, false
	}
	if !s.anchored {
		now := s.clock.Now()
		s.startTime = now - s.starts[s.nextIndex]
		s.nextStart = now
		s.anchored = true
	}
	s.schedulePendingLocked()
	return idx, true
}

// Pause stops every source and records how far playback got.
func (s *Scheduler) Pause() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := 0.0
	if s.playing && s.anchored {
		offset = clamp(s.clock.Now()-s.startTime, 0, s.total)
	} else if !s.playing {
		offset = s.offset
	}
	s.stopSourcesLocked()
	s.playing = false
	s.anchored = false
	s.offset = offset
	return offset
}

// Resume continues from the paused offset, starting mid-buffer when the
// offset falls inside one. With nothing cached it re-arms live scheduling.
// It reports true when there is nothing left to play and the stream is done.
func (s *Scheduler) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSourcesLocked()
	s.playing = true
	if len(s.buffers) == 0 {
		s.anchored = false
		s.nextIndex = 0
		return false
	}
	now := s.clock.Now()
	offset := s.offset
	s.offset = 0
	s.startTime = now - offset
	s.nextStart = now
	s.anchored = true

	idx := s.indexAt(offset)
	if idx == len(s.buffers) {
		s.nextIndex = idx
		return s.finishIfDrainedLocked()
	}
	inner := offset - s.starts[idx]
	s.scheduleLocked(idx, now, inner)
	s.schedulePendingLocked()
	return false
}

// ReplayFromStart plays the whole cache again from media time 0 without
// touching the network.
func (s *Scheduler) ReplayFromStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffers) == 0 {
		return ErrNothingCached
	}
	s.stopSourcesLocked()
	now := s.clock.Now()
	s.startTime = now
	s.nextStart = now
	s.nextIndex = 0
	s.offset = 0
	s.playing = true
	s.anchored = true
	s.schedulePendingLocked()
	return nil
}

// Stop silences playback and rewinds to the start. The cache is kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSourcesLocked()
	s.playing = false
	s.anchored = false
	s.offset = 0
	s.nextIndex = 0
}

// Reset stops playback and drops the cache.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSourcesLocked()
	s.buffers = nil
	s.starts = nil
	s.total = 0
	s.playing = false
	s.anchored = false
	s.streamDone = false
	s.offset = 0
	s.nextIndex = 0
}

// MarkStreamDone records that no more buffers will arrive. It reports true
// when playback had already drained every buffer.
func (s *Scheduler) MarkStreamDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamDone = true
	if !s.playing || !s.anchored {
		return false
	}
	return s.finishIfDrainedLocked()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Buffers:    len(s.buffers),
		Total:      s.total,
		Offset:     s.offset,
		Playing:    s.playing,
		Active:     len(s.sources),
		StreamDone: s.streamDone,
		Position:   s.offset,
	}
	if s.playing && s.anchored {
		st.Position = clamp(s.clock.Now()-s.startTime, 0, s.total)
	}
	return st
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers)
}

// Buffers returns the cached buffers in arrival order.
func (s *Scheduler) Buffers() []*audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*audio.Buffer, len(s.buffers))
	copy(out, s.buffers)
	return out
}

func (s *Scheduler) schedulePendingLocked() {
	for s.nextIndex < len(s.buffers) {
		at := s.nextStart
		if now := s.clock.Now(); at < now {
			// underrun: the queue ran dry before this buffer decoded
			s.startTime += now - at
			at = now
		}
		s.scheduleLocked(s.nextIndex, at, 0)
	}
}

func (s *Scheduler) scheduleLocked(idx int, at, offset float64) {
	buf := s.buffers[idx]
	gen := s.generation
	src := s.clock.Start(buf, at, offset, func() { s.ended(gen, idx) })
	s.sources = append(s.sources, scheduled{index: idx, source: src})
	s.nextStart = at + buf.Duration() - offset
	s.nextIndex = idx + 1
}

func (s *Scheduler) ended(gen uint64, idx int) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	for i, sc := range s.sources {
		if sc.index == idx {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			break
		}
	}
	finished := s.playing && s.finishIfDrainedLocked()
	s.mu.Unlock()
	if finished && s.onFinished != nil {
		s.onFinished()
	}
}

func (s *Scheduler) finishIfDrainedLocked() bool {
	if !s.streamDone || len(s.sources) > 0 || s.nextIndex < len(s.buffers) {
		return false
	}
	s.playing = false
	s.anchored = false
	s.offset = 0
	s.nextIndex = 0
	return true
}

func (s *Scheduler) stopSourcesLocked() {
	s.generation++
	sources := s.sources
	s.sources = nil
	for _, sc := range sources {
		safely(sc.source.Stop)
	}
}

// indexAt finds the buffer containing media time offset, or len(buffers)
// when offset is at or past the end.
func (s *Scheduler) indexAt(offset float64) int {
	for i := range s.buffers {
		if offset < s.starts[i]+s.buffers[i].Duration() {
			return i
		}
	}
	return len(s.buffers)
}

// safely runs fn, swallowing a panic so one broken source cannot stop the
// rest from being torn down.
func safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
