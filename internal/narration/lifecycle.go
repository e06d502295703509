package narration

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-narrator/internal/textnorm"
)

// Cleanup tears the session down completely: stream cancelled, sources
// stopped, cache dropped. Calling it again is a no-op.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	changed := c.cleanupLocked("cleanup")
	c.mu.Unlock()
	if changed {
		c.changed()
	}
}

// Close cleans up and rejects further commands.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cleanupLocked("closed")
	c.closed = true
	if c.replayTimer != nil {
		c.replayTimer.Stop()
		c.replayTimer = nil
	}
	c.mu.Unlock()
	c.changed()
}

// StageChanged tears narration down when the surrounding app switches
// views. It reports whether there was anything to tear down.
func (c *Controller) StageChanged(stage string) bool {
	c.mu.Lock()
	changed := c.cleanupLocked("stage:" + stage)
	c.mu.Unlock()
	if changed {
		c.changed()
	}
	return changed
}

// cleanupLocked returns false when there was nothing to tear down. Each step
// runs even if an earlier one panics.
func (c *Controller) cleanupLocked(reason string) bool {
	if c.sess == nil && c.phase == PhaseIdle && c.sched.Len() == 0 {
		return false
	}
	if sess := c.sess; sess != nil && sess.handle != nil {
		safely(c.logger, "cancel stream", sess.handle.Cancel)
	}
	safely(c.logger, "reset scheduler", c.sched.Reset)
	c.replayPending = false
	if c.replayTimer != nil {
		c.replayTimer.Stop()
		c.replayTimer = nil
	}
	c.emitLocked(Activity{Kind: ActivityTornDown, Detail: reason})
	if c.sess != nil {
		c.logger.Debug("narration torn down", slog.String("session_id", c.sess.id), slog.String("reason", reason))
	}
	c.sess = nil
	c.phase = PhaseIdle
	return true
}

func safely(logger *slog.Logger, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("cleanup step failed", slog.String("step", step), slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// normalizeLanguage maps a server-reported language onto the spoken
// vocabulary, keeping fallback for anything unknown.
func normalizeLanguage(reported string, fallback textnorm.Language) textnorm.Language {
	lang, err := textnorm.ParseLanguage(reported)
	if err != nil || lang == textnorm.Auto {
		return fallback
	}
	return lang
}
