package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

var (
	ErrMalformed         = errors.New("malformed audio chunk")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAudio        = errors.New("audio chunk has no samples")
)

// Decoder turns base64 chunks from the narration stream into Buffers. WAV
// (8/16/24/32-bit PCM) and MP3 payloads are recognised by their headers.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(chunk string) (*Buffer, error) {
	chunk = strings.TrimSpace(chunk)
	raw, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		var rawErr error
		if raw, rawErr = base64.RawStdEncoding.DecodeString(chunk); rawErr != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
		}
	}
	return d.DecodeBytes(raw)
}

func (d *Decoder) DecodeBytes(raw []byte) (*Buffer, error) {
	var (
		buf *Buffer
		err error
	)
	switch {
	case isWAV(raw):
		buf, err = decodeWAV(raw)
	case isMP3(raw):
		buf, err = decodeMP3(raw)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if buf.Frames() == 0 {
		return nil, ErrEmptyAudio
	}
	return buf, nil
}

func isWAV(raw []byte) bool {
	return len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE"
}

func isMP3(raw []byte) bool {
	if len(raw) >= 3 && string(raw[0:3]) == "ID3" {
		return true
	}
	return len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0
}

func decodeWAV(raw []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", ErrMalformed)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: wav: %v", ErrMalformed, err)
	}
	shift, err := bitShift(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(pcm.Data))
	for i, v := range pcm.Data {
		switch {
		case dec.BitDepth == 8:
			// 8-bit wav is unsigned.
			samples[i] = int16((v - 128) << 8)
		case shift >= 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}
	return &Buffer{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    samples,
	}, nil
}

func bitShift(depth int) (int, error) {
	switch depth {
	case 8, 16:
		return 0, nil
	case 24:
		return 8, nil
	case 32:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, depth)
	}
}

// decodeMP3 yields stereo 16-bit samples; go-mp3 always outputs two channels.
func decodeMP3(raw []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrMalformed, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil && len(pcm) == 0 {
		return nil, fmt.Errorf("%w: mp3: %v", ErrMalformed, err)
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return &Buffer{SampleRate: dec.SampleRate(), Channels: 2, Samples: samples}, nil
}

// WriteWAV encodes buf as a 16-bit PCM wav file.
func WriteWAV(w io.WriteSeeker, buf *Buffer) error {
	if buf == nil || buf.Channels <= 0 || buf.SampleRate <= 0 {
		return fmt.Errorf("write wav: invalid buffer")
	}
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(s)
	}
	pcm := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(w, buf.SampleRate, 16, buf.Channels, 1)
	if err := enc.Write(pcm); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
