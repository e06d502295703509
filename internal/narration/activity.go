package narration

import "time"

type ActivityKind string

const (
	ActivitySessionStarted    ActivityKind = "session_started"
	ActivityStreamStarted     ActivityKind = "stream_started"
	ActivityChunkDecoded      ActivityKind = "chunk_decoded"
	ActivityChunkSkipped      ActivityKind = "chunk_skipped"
	ActivityStreamCompleted   ActivityKind = "stream_completed"
	ActivityStreamFailed      ActivityKind = "stream_failed"
	ActivityPaused            ActivityKind = "paused"
	ActivityResumed           ActivityKind = "resumed"
	ActivityStopped           ActivityKind = "stopped"
	ActivityReplayed          ActivityKind = "replayed"
	ActivityPlaybackCompleted ActivityKind = "playback_completed"
	ActivityTornDown          ActivityKind = "torn_down"
)

// Activity is emitted for every notable step of a session. Consumers (the
// event store, metrics) receive it synchronously and must not block.
type Activity struct {
	Kind       ActivityKind `json:"kind"`
	SessionID  string       `json:"session_id"`
	UserID     string       `json:"user_id,omitempty"`
	Language   string       `json:"language,omitempty"`
	TextLength int          `json:"text_length,omitempty"`
	Chunk      int          `json:"chunk,omitempty"`
	Seconds    float64      `json:"seconds,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	At         time.Time    `json:"at"`
}
