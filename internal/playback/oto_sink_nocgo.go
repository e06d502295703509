//go:build nocgo

package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

var errNoAudioDevice = errors.New("oto playback sink is not available in nocgo builds")

// OtoSink is unavailable without cgo; NewOtoSink always fails.
type OtoSink struct{}

func NewOtoSink(_ *slog.Logger) (*OtoSink, error) {
	return nil, errNoAudioDevice
}

func (o *OtoSink) Play(context.Context, *audio.Buffer) error {
	return errNoAudioDevice
}
