package narration

import (
	"github.com/google/uuid"

	"github.com/loqalabs/loqa-narrator/internal/stream"
	"github.com/loqalabs/loqa-narrator/internal/textnorm"
)

// session is one narration request: one text, one stream, one cache. Stream
// callbacks carry the session they were opened for; a callback whose session
// is no longer current is discarded.
type session struct {
	id         string
	text       string
	normalized string
	language   textnorm.Language
	userID     string

	handle stream.Handle
	status StreamStatus
	err    error

	voice       string
	chunks      int
	skipped     int
	totalChunks int
}

func newSession(text string, res textnorm.Result, userID string) *session {
	return &session{
		id:         uuid.NewString(),
		text:       text,
		normalized: res.Text,
		language:   res.Language,
		userID:     userID,
		status:     StreamConnecting,
	}
}
