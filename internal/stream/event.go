// Package stream reads narration audio from the speech endpoint's
// server-sent-event body.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type EventType string

const (
	EventStatus     EventType = "status"
	EventAudioChunk EventType = "audio_chunk"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// Event is one `data:` line of the stream. Which fields are set depends on
// Type.
type Event struct {
	Type        EventType `json:"type"`
	Status      string    `json:"status,omitempty"`
	Language    string    `json:"language,omitempty"`
	Voice       string    `json:"voice,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	AudioData   string    `json:"audio_data,omitempty"`
	TotalChunks int       `json:"total_chunks,omitempty"`
	Message     string    `json:"message,omitempty"`
}

var ErrBadEvent = errors.New("malformed stream event")

const dataPrefix = "data:"

// ParseLine decodes a single line of the event stream. ok is false for
// lines that carry no event (blank lines, comments, other SSE fields).
func ParseLine(line string) (ev Event, ok bool, err error) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false, nil
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return Event{}, false, nil
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, false, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if ev.Type == "" {
		return Event{}, false, fmt.Errorf("%w: missing type", ErrBadEvent)
	}
	return ev, true, nil
}
