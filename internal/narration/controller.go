// Package narration plays tutoring text aloud: it normalizes the text,
// streams synthesized audio from the speech endpoint, and schedules the
// decoded chunks gaplessly while the listener pauses, resumes, replays or
// leaves the page.
package narration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/playback"
	"github.com/loqalabs/loqa-narrator/internal/stream"
	"github.com/loqalabs/loqa-narrator/internal/textnorm"
)

var (
	ErrNoText         = errors.New("nothing to narrate")
	ErrNothingCached  = playback.ErrNothingCached
	ErrPlaybackLocked = errors.New("replay already pending")
	ErrClosed         = errors.New("narration controller closed")
)

// Streamer opens narration streams. Callbacks must not run on the caller's
// goroutine before Start returns.
type Streamer interface {
	Start(ctx context.Context, req stream.Request, cb stream.Callbacks) stream.Handle
}

type Decoder interface {
	Decode(chunk string) (*audio.Buffer, error)
}

type Normalizer interface {
	Process(text string, lang textnorm.Language) textnorm.Result
}

type Options struct {
	APIBaseURL     string
	Token          string
	UserID         string
	ChunkSize      int
	Language       textnorm.Language
	ReplayCooldown time.Duration
	// Normalizer defaults to textnorm.Process.
	Normalizer Normalizer
	// OnActivity receives activity records under the controller lock.
	OnActivity func(Activity)
}

// Snapshot is the externally visible state of a Controller.
type Snapshot struct {
	SessionID        string
	Phase            Phase
	StreamStatus     StreamStatus
	Status           string
	IsPlaying        bool
	IsPaused         bool
	HasAudioReady    bool
	IsPlaybackLocked bool
	PausedOffset     float64
	Position         float64
	BufferedChunks   int
	BufferedSeconds  float64
	SkippedChunks    int
	Language         string
	Error            string
	Seq              uint64
}

type defaultNormalizer struct{}

func (defaultNormalizer) Process(text string, lang textnorm.Language) textnorm.Result {
	return textnorm.Process(text, lang)
}

// Controller owns at most one narration session and the scheduler that
// plays it. All state changes are serialized on one mutex; stream callbacks
// and clock callbacks enter through it too.
type Controller struct {
	ctx      context.Context
	opts     Options
	streamer Streamer
	decoder  Decoder
	sched    *playback.Scheduler
	logger   *slog.Logger

	mu            sync.Mutex
	text          string
	userID        string
	language      textnorm.Language
	phase         Phase
	sess          *session
	replayPending bool
	replayTimer   *time.Timer
	closed        bool
	seq           uint64

	notifyMu    sync.Mutex
	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
}

func NewController(ctx context.Context, opts Options, streamer Streamer, decoder Decoder, clock playback.Clock, logger *slog.Logger) *Controller {
	if opts.Normalizer == nil {
		opts.Normalizer = defaultNormalizer{}
	}
	if opts.Language == "" {
		opts.Language = textnorm.Auto
	}
	c := &Controller{
		ctx:         ctx,
		opts:        opts,
		streamer:    streamer,
		decoder:     decoder,
		logger:      logger.With(slog.String("component", "narration-controller")),
		userID:      opts.UserID,
		language:    opts.Language,
		phase:       PhaseIdle,
		subscribers: make(map[int]func(Snapshot)),
	}
	c.sched = playback.NewScheduler(clock, c.playbackFinished)
	return c
}

// PlayPause is the single toggle button: start when idle, stopped or
// completed, pause while loading or playing, resume when paused.
func (c *Controller) PlayPause() error {
	c.mu.Lock()
	var err error
	switch {
	case c.closed:
		err = ErrClosed
	case c.phase == PhaseIdle, c.phase == PhaseStopped, c.phase == PhaseCompleted:
		err = c.startLocked()
	case c.phase == PhasePaused:
		c.resumeLocked()
	default:
		c.pauseLocked()
	}
	c.mu.Unlock()
	c.changed()
	return err
}

// Stop silences playback and cancels the stream but keeps decoded audio for
// ReplayFromStart. Without a session it does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed || c.sess == nil {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	if sess.status.live() {
		safely(c.logger, "cancel stream", sess.handle.Cancel)
		sess.status = StreamIdle
		c.sched.MarkStreamDone()
	}
	c.sched.Stop()
	c.phase = PhaseStopped
	c.emitLocked(Activity{Kind: ActivityStopped})
	c.mu.Unlock()
	c.changed()
}

// ReplayFromStart plays every cached chunk from the beginning without a new
// request. Calls within the cooldown of a previous replay are rejected.
func (c *Controller) ReplayFromStart() error {
	c.mu.Lock()
	err := c.replayLocked()
	c.mu.Unlock()
	c.changed()
	return err
}

func (c *Controller) replayLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.replayPending {
		return ErrPlaybackLocked
	}
	if c.sess == nil {
		return ErrNothingCached
	}
	if err := c.sched.ReplayFromStart(); err != nil {
		return err
	}
	c.phase = PhasePlaying
	c.holdReplayLocked()
	c.emitLocked(Activity{Kind: ActivityReplayed, Chunk: c.sched.Len()})
	return nil
}

// SetText replaces the text to narrate. A different text tears down the
// current session.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	if text == c.text {
		c.mu.Unlock()
		return
	}
	c.text = text
	c.cleanupLocked("text_changed")
	c.mu.Unlock()
	c.changed()
}

// SetUserID applies to the next session.
func (c *Controller) SetUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// SetLanguage applies to the next session.
func (c *Controller) SetLanguage(lang textnorm.Language) {
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()
}

func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn runs outside the controller lock but must not call back
// into mutating Controller methods.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) startLocked() error {
	if strings.TrimSpace(c.text) == "" {
		return ErrNoText
	}
	// stop-then-start: the previous session is fully torn down first
	c.cleanupLocked("restart")

	res := c.opts.Normalizer.Process(c.text, c.language)
	if strings.TrimSpace(res.Text) == "" {
		return ErrNoText
	}
	sess := newSession(c.text, res, c.userID)
	c.sess = sess
	c.phase = PhaseConnecting
	c.sched.StartLive()
	c.emitLocked(Activity{Kind: ActivitySessionStarted, TextLength: len(res.Text)})

	sess.handle = c.streamer.Start(c.ctx, stream.Request{
		BaseURL:   c.opts.APIBaseURL,
		Text:      res.Text,
		ChunkSize: c.opts.ChunkSize,
		UserID:    sess.userID,
		Token:     c.opts.Token,
	}, stream.Callbacks{
		OnEvent:    func(ev stream.Event) { c.handleEvent(sess, ev) },
		OnError:    func(err error) { c.handleStreamError(sess, err) },
		OnComplete: func() { c.handleStreamEnd(sess) },
	})
	c.logger.Info("narration started",
		slog.String("session_id", sess.id),
		slog.String("language", string(sess.language)),
		slog.Int("text_length", len(res.Text)))
	return nil
}

func (c *Controller) pauseLocked() {
	offset := c.sched.Pause()
	c.phase = PhasePaused
	c.emitLocked(Activity{Kind: ActivityPaused, Seconds: offset})
}

func (c *Controller) resumeLocked() {
	finished := c.sched.Resume()
	switch {
	case finished:
		c.phase = PhaseCompleted
		c.emitLocked(Activity{Kind: ActivityPlaybackCompleted})
		return
	case c.sched.Len() > 0:
		c.phase = PhasePlaying
	case c.sess.status == StreamStreaming:
		c.phase = PhaseStreaming
	case c.sess.status == StreamConnecting:
		c.phase = PhaseConnecting
	case c.sess.status == StreamError:
		c.phase = PhaseIdle
	default:
		c.phase = PhaseCompleted
		c.emitLocked(Activity{Kind: ActivityResumed, Seconds: c.sched.State().Position})
		c.emitLocked(Activity{Kind: ActivityPlaybackCompleted})
		return
	}
	c.emitLocked(Activity{Kind: ActivityResumed, Seconds: c.sched.State().Position})
}

func (c *Controller) holdReplayLocked() {
	if c.opts.ReplayCooldown <= 0 {
		return
	}
	c.replayPending = true
	if c.replayTimer != nil {
		c.replayTimer.Stop()
	}
	c.replayTimer = time.AfterFunc(c.opts.ReplayCooldown, func() {
		c.mu.Lock()
		c.replayPending = false
		c.mu.Unlock()
		c.changed()
	})
}

// playbackFinished runs from clock callbacks once the last buffer ends.
func (c *Controller) playbackFinished() {
	c.mu.Lock()
	if c.sess == nil || c.phase != PhasePlaying || c.sched.State().Playing {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseCompleted
	c.emitLocked(Activity{Kind: ActivityPlaybackCompleted})
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) emitLocked(act Activity) {
	if c.opts.OnActivity == nil {
		return
	}
	if c.sess != nil {
		act.SessionID = c.sess.id
		act.UserID = c.sess.userID
		act.Language = string(c.sess.language)
	}
	act.At = time.Now().UTC()
	c.opts.OnActivity(act)
}

func (c *Controller) snapshotLocked() Snapshot {
	st := c.sched.State()
	snap := Snapshot{
		Phase:            c.phase,
		StreamStatus:     StreamIdle,
		IsPlaying:        c.phase == PhasePlaying,
		IsPaused:         c.phase == PhasePaused,
		HasAudioReady:    st.Buffers > 0,
		IsPlaybackLocked: c.replayPending,
		Position:         st.Position,
		BufferedChunks:   st.Buffers,
		BufferedSeconds:  st.Total,
		Seq:              c.seq,
	}
	if c.phase == PhasePaused {
		snap.PausedOffset = st.Offset
	}
	if s := c.sess; s != nil {
		snap.SessionID = s.id
		snap.StreamStatus = s.status
		snap.SkippedChunks = s.skipped
		snap.Language = string(s.language)
		if s.err != nil {
			snap.Error = s.err.Error()
		}
	}
	snap.Status = StatusText(snap.Phase, snap.StreamStatus, snap.HasAudioReady)
	return snap
}

// changed publishes a fresh snapshot to subscribers. Snapshots are taken and
// delivered under notifyMu so subscribers see them in Seq order.
func (c *Controller) changed() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.seq++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
