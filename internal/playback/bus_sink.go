package playback

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// Publisher is the slice of the bus client a BusSink needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// BusSink forwards rendered audio as little-endian PCM frames on
// narration.audio.<player_id> for a remote speaker.
type BusSink struct {
	pub      Publisher
	playerID string
	subject  string

	mu  sync.Mutex
	seq int
}

func NewBusSink(pub Publisher, playerID string) *BusSink {
	return &BusSink{pub: pub, playerID: playerID, subject: protocol.AudioSubject(playerID)}
}

func (b *BusSink) Play(ctx context.Context, buf *audio.Buffer) error {
	if ctx.Err() != nil {
		return nil
	}
	b.mu.Lock()
	seq := b.seq
	b.seq++
	b.mu.Unlock()

	return b.pub.PublishJSON(b.subject, protocol.AudioFrame{
		PlayerID:   b.playerID,
		Sequence:   seq,
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		PCM:        pcmBytes(buf.Samples),
	})
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
