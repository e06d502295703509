package protocol

import "time"

// Command actions accepted on SubjectNarrationCommand.
const (
	ActionSetText   = "set_text"
	ActionPlayPause = "play_pause"
	ActionStop      = "stop"
	ActionReplay    = "replay"
	ActionCleanup   = "cleanup"
	ActionStatus    = "status"
)

// NarrationCommand drives one player. Text, UserID and Language only apply
// to set_text (and to play_pause, where a non-empty Text is set first).
type NarrationCommand struct {
	PlayerID string `json:"player_id"`
	Action   string `json:"action"`
	Text     string `json:"text,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// StageChange is broadcast by the UI when it switches views. An empty
// PlayerID addresses every player.
type StageChange struct {
	PlayerID  string    `json:"player_id,omitempty"`
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// PlayerStatus is published on every state change and returned as the reply
// to commands.
type PlayerStatus struct {
	PlayerID         string    `json:"player_id"`
	SessionID        string    `json:"session_id,omitempty"`
	Phase            string    `json:"phase"`
	StreamStatus     string    `json:"stream_status"`
	Status           string    `json:"status"`
	IsPlaying        bool      `json:"is_playing"`
	IsPaused         bool      `json:"is_paused"`
	HasAudioReady    bool      `json:"has_audio_ready"`
	IsPlaybackLocked bool      `json:"is_playback_locked"`
	PausedOffset     float64   `json:"paused_offset_seconds"`
	BufferedChunks   int       `json:"buffered_chunks"`
	BufferedSeconds  float64   `json:"buffered_seconds"`
	SkippedChunks    int       `json:"skipped_chunks"`
	Language         string    `json:"language,omitempty"`
	Error            string    `json:"error,omitempty"`
	CommandError     string    `json:"command_error,omitempty"`
	Sequence         uint64    `json:"sequence"`
	Timestamp        time.Time `json:"timestamp"`
}

// AudioFrame carries rendered PCM for a remote speaker.
type AudioFrame struct {
	PlayerID   string `json:"player_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
}

const (
	SubjectNarrationCommand      = "narration.command"
	SubjectStageChanged          = "ui.stage.changed"
	SubjectNarrationStatusPrefix = "narration.status"
	SubjectNarrationAudioPrefix  = "narration.audio"

	// StreamNarrationStatus keeps the last status per player in JetStream.
	StreamNarrationStatus = "NARRATION_STATUS"
)

func StatusSubject(playerID string) string {
	return SubjectNarrationStatusPrefix + "." + playerID
}

func AudioSubject(playerID string) string {
	return SubjectNarrationAudioPrefix + "." + playerID
}
