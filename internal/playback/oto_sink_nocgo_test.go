//go:build nocgo

package playback

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

func TestOtoSinkUnavailableWithoutCgo(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewSink(config.PlaybackConfig{Sink: "oto"}, nil, "p", logger); !errors.Is(err, errNoAudioDevice) {
		t.Fatalf("expected errNoAudioDevice, got %v", err)
	}
}
