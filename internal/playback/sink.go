package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/config"
)

// Sink renders audio the clock has decided should be heard now.
type Sink interface {
	Play(ctx context.Context, buf *audio.Buffer) error
}

// NewSink builds the sink named by cfg for one player. pub is only used by
// the bus sink and may be nil otherwise.
func NewSink(cfg config.PlaybackConfig, pub Publisher, playerID string, logger *slog.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "mock":
		return NewMockSink(), nil
	case "exec":
		return NewExecSink(cfg.Command, logger)
	case "oto":
		return NewOtoSink(logger)
	case "bus":
		if pub == nil {
			return nil, fmt.Errorf("bus playback sink needs a bus connection")
		}
		return NewBusSink(pub, playerID), nil
	default:
		return nil, fmt.Errorf("unsupported playback sink %q", cfg.Sink)
	}
}

// MockSink records what it was asked to play.
type MockSink struct {
	mu     sync.Mutex
	played []*audio.Buffer
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Play(ctx context.Context, buf *audio.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.played = append(m.played, buf)
	m.mu.Unlock()
	return nil
}

func (m *MockSink) Played() []*audio.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*audio.Buffer, len(m.played))
	copy(out, m.played)
	return out
}
