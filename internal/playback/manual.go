package playback

import (
	"sort"
	"sync"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

// StartRecord captures one Clock.Start call on a ManualClock.
type StartRecord struct {
	Buffer *audio.Buffer
	At     float64
	Offset float64
}

// ManualClock is a Clock that only moves when Advance is called. Tests and
// the dry-run CLI use it to check schedules without real time passing.
type ManualClock struct {
	mu      sync.Mutex
	now     float64
	seq     int
	sources []*manualSource
	starts  []StartRecord
}

type manualSource struct {
	clock   *ManualClock
	seq     int
	end     float64
	onEnded func()
	done    bool
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Start(buf *audio.Buffer, at, offset float64, onEnded func()) Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, StartRecord{Buffer: buf, At: at, Offset: offset})
	if at < c.now {
		at = c.now
	}
	c.seq++
	src := &manualSource{
		clock:   c,
		seq:     c.seq,
		end:     at + buf.Duration() - offset,
		onEnded: onEnded,
	}
	c.sources = append(c.sources, src)
	return src
}

// Advance moves the clock forward by d seconds and fires the end callbacks
// of every source that finished, in end order, outside the clock lock.
func (c *ManualClock) Advance(d float64) {
	c.mu.Lock()
	c.now += d
	var due []*manualSource
	remaining := c.sources[:0]
	for _, src := range c.sources {
		if src.done {
			continue
		}
		if src.end <= c.now {
			src.done = true
			due = append(due, src)
			continue
		}
		remaining = append(remaining, src)
	}
	c.sources = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].end != due[j].end {
			return due[i].end < due[j].end
		}
		return due[i].seq < due[j].seq
	})
	for _, src := range due {
		if src.onEnded != nil {
			src.onEnded()
		}
	}
}

// Starts returns every Start call so far.
func (c *ManualClock) Starts() []StartRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StartRecord, len(c.starts))
	copy(out, c.starts)
	return out
}

// Active counts sources that are neither stopped nor ended.
func (c *ManualClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, src := range c.sources {
		if !src.done {
			n++
		}
	}
	return n
}

func (s *manualSource) Stop() {
	s.clock.mu.Lock()
	s.done = true
	s.clock.mu.Unlock()
}
