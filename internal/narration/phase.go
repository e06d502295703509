package narration

// Phase is where a player is in its lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseStreaming  Phase = "streaming"
	PhasePlaying    Phase = "playing"
	PhasePaused     Phase = "paused"
	PhaseStopped    Phase = "stopped"
	PhaseCompleted  Phase = "completed"
)

// StreamStatus tracks the network side of a session independently of
// playback.
type StreamStatus string

const (
	StreamIdle       StreamStatus = "idle"
	StreamConnecting StreamStatus = "connecting"
	StreamStreaming  StreamStatus = "streaming"
	StreamCompleted  StreamStatus = "completed"
	StreamError      StreamStatus = "error"
)

func (s StreamStatus) live() bool {
	return s == StreamConnecting || s == StreamStreaming
}

// StatusText renders the UI status line, e.g. "Playing • Live" or
// "Paused • Processing...".
func StatusText(phase Phase, stream StreamStatus, hasAudio bool) string {
	var text string
	switch phase {
	case PhaseConnecting, PhaseStreaming:
		text = "Loading"
	case PhasePlaying:
		text = "Playing"
	case PhasePaused:
		text = "Paused"
	case PhaseStopped:
		text = "Stopped"
	default:
		text = "Ready"
	}
	switch {
	case stream == StreamCompleted:
		text += " • Complete"
	case stream == StreamStreaming && phase == PhasePlaying:
		text += " • Live"
	case stream == StreamStreaming && hasAudio:
		text += " • Processing..."
	}
	return text
}
