package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

// SystemClock runs on the monotonic wall clock. Start and end of every
// source are timers derived from clock arithmetic; the sink only renders.
type SystemClock struct {
	ctx    context.Context
	origin time.Time
	sink   Sink
	logger *slog.Logger
}

func NewSystemClock(ctx context.Context, sink Sink, logger *slog.Logger) *SystemClock {
	return &SystemClock{
		ctx:    ctx,
		origin: time.Now(),
		sink:   sink,
		logger: logger.With(slog.String("component", "system-clock")),
	}
}

func (c *SystemClock) Now() float64 {
	return time.Since(c.origin).Seconds()
}

func (c *SystemClock) Start(buf *audio.Buffer, at, offset float64, onEnded func()) Source {
	delay := seconds(at - c.Now())
	length := seconds(buf.Duration() - offset)
	ctx, cancel := context.WithCancel(c.ctx)
	src := &systemSource{cancel: cancel}

	src.mu.Lock()
	defer src.mu.Unlock()
	src.start = time.AfterFunc(delay, func() {
		defer cancel()
		if err := c.sink.Play(ctx, buf.Slice(offset)); err != nil && ctx.Err() == nil {
			c.logger.Warn("sink playback failed", slog.String("error", err.Error()))
		}
	})
	src.end = time.AfterFunc(delay+length, func() {
		if src.finish() && onEnded != nil {
			onEnded()
		}
	})
	return src
}

type systemSource struct {
	mu      sync.Mutex
	start   *time.Timer
	end     *time.Timer
	cancel  context.CancelFunc
	stopped bool
	ended   bool
}

func (s *systemSource) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.ended {
		return false
	}
	s.ended = true
	return true
}

func (s *systemSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	start, end := s.start, s.end
	s.mu.Unlock()
	start.Stop()
	end.Stop()
	s.cancel()
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
