package narration

import (
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-narrator/internal/stream"
)

// handleEvent dispatches one parsed stream event. It runs on the stream
// reader goroutine.
func (c *Controller) handleEvent(sess *session, ev stream.Event) {
	switch ev.Type {
	case stream.EventStatus:
		c.handleStatus(sess, ev)
	case stream.EventAudioChunk:
		c.handleChunk(sess, ev)
	case stream.EventComplete:
		c.mu.Lock()
		if c.sess == sess {
			sess.totalChunks = ev.TotalChunks
		}
		c.mu.Unlock()
		c.handleStreamEnd(sess)
	case stream.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "speech service reported an error"
		}
		c.handleStreamError(sess, errors.New(msg))
	default:
		c.logger.Debug("ignoring stream event", slog.String("type", string(ev.Type)))
	}
}

func (c *Controller) handleStatus(sess *session, ev stream.Event) {
	c.mu.Lock()
	if c.sess != sess || !sess.status.live() {
		c.mu.Unlock()
		return
	}
	if sess.status == StreamConnecting {
		sess.status = StreamStreaming
	}
	if ev.Language != "" {
		sess.language = normalizeLanguage(ev.Language, sess.language)
	}
	sess.voice = ev.Voice
	if c.phase == PhaseConnecting {
		c.phase = PhaseStreaming
	}
	c.emitLocked(Activity{Kind: ActivityStreamStarted, Detail: ev.Voice})
	c.mu.Unlock()
	c.changed()
}

// handleChunk decodes outside the lock; if the session was torn down,
// replaced or stopped meanwhile the buffer is dropped.
func (c *Controller) handleChunk(sess *session, ev stream.Event) {
	buf, err := c.decoder.Decode(ev.AudioData)

	c.mu.Lock()
	if c.sess != sess || !sess.status.live() {
		c.mu.Unlock()
		return
	}
	if sess.status == StreamConnecting {
		sess.status = StreamStreaming
	}
	if err != nil {
		sess.skipped++
		c.logger.Warn("skipping undecodable audio chunk",
			slog.String("session_id", sess.id),
			slog.Int("chunk", sess.chunks+sess.skipped),
			slogError(err))
		c.emitLocked(Activity{Kind: ActivityChunkSkipped, Chunk: sess.chunks + sess.skipped, Detail: err.Error()})
		c.mu.Unlock()
		c.changed()
		return
	}

	idx, scheduled := c.sched.Append(buf)
	sess.chunks++
	if scheduled && (c.phase == PhaseConnecting || c.phase == PhaseStreaming) {
		c.phase = PhasePlaying
	} else if c.phase == PhaseConnecting {
		c.phase = PhaseStreaming
	}
	c.emitLocked(Activity{Kind: ActivityChunkDecoded, Chunk: idx, Seconds: buf.Duration()})
	c.mu.Unlock()
	c.changed()
}

// handleStreamEnd covers both the server's complete event and EOF; whichever
// arrives first wins.
func (c *Controller) handleStreamEnd(sess *session) {
	c.mu.Lock()
	if c.sess != sess || !sess.status.live() {
		c.mu.Unlock()
		return
	}
	sess.status = StreamCompleted
	finished := c.sched.MarkStreamDone()
	c.emitLocked(Activity{Kind: ActivityStreamCompleted, Chunk: sess.chunks})
	switch {
	case finished:
		c.phase = PhaseCompleted
		c.emitLocked(Activity{Kind: ActivityPlaybackCompleted})
	case c.sched.Len() == 0 && (c.phase == PhaseConnecting || c.phase == PhaseStreaming):
		c.phase = PhaseCompleted
		c.emitLocked(Activity{Kind: ActivityPlaybackCompleted})
	}
	c.logger.Info("narration stream completed",
		slog.String("session_id", sess.id),
		slog.Int("chunks", sess.chunks),
		slog.Int("skipped", sess.skipped),
		slog.Int("total_chunks", sess.totalChunks))
	c.mu.Unlock()
	c.changed()
}

// handleStreamError records a network or server failure. There is no retry;
// audio already cached keeps playing.
func (c *Controller) handleStreamError(sess *session, err error) {
	c.mu.Lock()
	if c.sess != sess || !sess.status.live() {
		c.mu.Unlock()
		return
	}
	sess.status = StreamError
	sess.err = err
	safely(c.logger, "cancel stream", sess.handle.Cancel)
	finished := c.sched.MarkStreamDone()
	c.emitLocked(Activity{Kind: ActivityStreamFailed, Detail: err.Error()})
	switch {
	case finished:
		c.phase = PhaseCompleted
		c.emitLocked(Activity{Kind: ActivityPlaybackCompleted})
	case c.sched.Len() == 0 && c.phase != PhaseStopped:
		c.phase = PhaseIdle
	}
	c.logger.Warn("narration stream failed", slog.String("session_id", sess.id), slogError(err))
	c.mu.Unlock()
	c.changed()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
