//go:build !nocgo

package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

const otoPollInterval = 20 * time.Millisecond

// oto allows one context per process, so every OtoSink shares it. The format
// is fixed by the first buffer played.
var (
	otoMu       sync.Mutex
	otoCtx      *oto.Context
	otoReady    chan struct{}
	otoRate     int
	otoChannels int
	otoErr      error
)

// OtoSink plays buffers on the default output device. The clock decides when
// each buffer starts; overlapping buffers are mixed by the device context.
type OtoSink struct {
	logger *slog.Logger
}

func NewOtoSink(logger *slog.Logger) (*OtoSink, error) {
	return &OtoSink{logger: logger.With(slog.String("component", "oto-sink"))}, nil
}

func (o *OtoSink) Play(ctx context.Context, buf *audio.Buffer) error {
	if ctx.Err() != nil || buf.Frames() == 0 {
		return nil
	}
	device, ready, err := otoContext(buf.SampleRate, buf.Channels)
	if err != nil {
		return err
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil
	}

	player := device.NewPlayer(bytes.NewReader(pcmBytes(buf.Samples)))
	defer func() {
		if err := player.Close(); err != nil {
			o.logger.Debug("failed to close player", slog.String("error", err.Error()))
		}
	}()
	player.Play()

	ticker := time.NewTicker(otoPollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func otoContext(sampleRate, channels int) (*oto.Context, chan struct{}, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoErr != nil {
		return nil, nil, otoErr
	}
	if otoCtx != nil {
		if sampleRate != otoRate || channels != otoChannels {
			return nil, nil, fmt.Errorf("audio device opened at %d Hz/%d ch; got %d Hz/%d ch", otoRate, otoChannels, sampleRate, channels)
		}
		return otoCtx, otoReady, nil
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, nil, errors.New("invalid audio format")
	}
	c, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		otoErr = fmt.Errorf("open audio device: %w", err)
		return nil, nil, otoErr
	}
	otoCtx, otoReady, otoRate, otoChannels = c, ready, sampleRate, channels
	return otoCtx, otoReady, nil
}
