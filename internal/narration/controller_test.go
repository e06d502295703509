package narration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/playback"
	"github.com/loqalabs/loqa-narrator/internal/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct {
	req stream.Request
	cb  stream.Callbacks

	mu        sync.Mutex
	cancelled bool
	broken    bool
	done      chan struct{}
}

func (f *fakeStream) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		panic("connection already torn")
	}
	if !f.cancelled {
		f.cancelled = true
		close(f.done)
	}
}

func (f *fakeStream) Done() <-chan struct{} { return f.done }

func (f *fakeStream) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeStream) status() {
	f.cb.OnEvent(stream.Event{Type: stream.EventStatus, Status: "started", Language: "en", Voice: "test-voice"})
}

// chunk delivers an audio chunk whose payload the fake decoder reads as a
// duration in seconds.
func (f *fakeStream) chunk(seconds string) {
	f.cb.OnEvent(stream.Event{Type: stream.EventAudioChunk, AudioData: seconds})
}

func (f *fakeStream) complete(total int) {
	f.cb.OnEvent(stream.Event{Type: stream.EventComplete, TotalChunks: total})
}

type fakeStreamer struct {
	mu      sync.Mutex
	streams []*fakeStream
	broken  bool
}

func (f *fakeStreamer) Start(_ context.Context, req stream.Request, cb stream.Callbacks) stream.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStream{req: req, cb: cb, broken: f.broken, done: make(chan struct{})}
	f.streams = append(f.streams, s)
	return s
}

func (f *fakeStreamer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeStreamer) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

func (f *fakeStreamer) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.streams {
		if !s.isCancelled() {
			n++
		}
	}
	return n
}

// durationDecoder turns "0.5" into half a second of 8 kHz silence.
type durationDecoder struct {
	gate    chan struct{}
	entered chan struct{}
}

func (d durationDecoder) Decode(chunk string) (*audio.Buffer, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
		<-d.gate
	}
	secs, err := strconv.ParseFloat(chunk, 64)
	if err != nil || secs <= 0 {
		return nil, fmt.Errorf("bad chunk %q", chunk)
	}
	return &audio.Buffer{SampleRate: 8000, Channels: 1, Samples: make([]int16, int(secs*8000))}, nil
}

type activityLog struct {
	mu   sync.Mutex
	acts []Activity
}

func (a *activityLog) record(act Activity) {
	a.mu.Lock()
	a.acts = append(a.acts, act)
	a.mu.Unlock()
}

func (a *activityLog) count(kind ActivityKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, act := range a.acts {
		if act.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl     *Controller
	clock    *playback.ManualClock
	streamer *fakeStreamer
	acts     *activityLog
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newHarnessWithDecoder(t, opts, durationDecoder{})
}

func newHarnessWithDecoder(t *testing.T, opts Options, dec Decoder) *harness {
	t.Helper()
	h := &harness{
		clock:    playback.NewManualClock(),
		streamer: &fakeStreamer{},
		acts:     &activityLog{},
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = "http://tts.test"
	}
	opts.OnActivity = h.acts.record
	h.ctrl = NewController(context.Background(), opts, h.streamer, dec, h.clock, discardLogger())
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) play(t *testing.T) *fakeStream {
	t.Helper()
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("PlayPause: %v", err)
	}
	return h.streamer.last()
}

func TestStreamScenarioPlaysGaplessly(t *testing.T) {
	h := newHarness(t, Options{UserID: "student-7", ChunkSize: 2048, Token: "tok"})
	h.ctrl.SetText("Solve $x^2 + y = 5$ now")

	s := h.play(t)
	if got := h.ctrl.Snapshot(); got.Phase != PhaseConnecting || got.StreamStatus != StreamConnecting {
		t.Fatalf("expected connecting, got %+v", got)
	}
	if strings.Contains(s.req.Text, "$") || !strings.Contains(s.req.Text, "x squared plus y equals five") {
		t.Fatalf("expected normalized text, got %q", s.req.Text)
	}
	if s.req.UserID != "student-7" || s.req.ChunkSize != 2048 || s.req.Token != "tok" {
		t.Fatalf("unexpected request %+v", s.req)
	}

	s.status()
	if got := h.ctrl.Snapshot(); got.Phase != PhaseStreaming || got.StreamStatus != StreamStreaming {
		t.Fatalf("expected streaming, got %+v", got)
	}

	s.chunk("0.5")
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhasePlaying || snap.Status != "Playing • Live" {
		t.Fatalf("expected live playback, got %+v", snap)
	}
	s.chunk("0.25")
	s.complete(2)

	starts := h.clock.Starts()
	if len(starts) != 2 {
		t.Fatalf("expected 2 scheduled sources, got %d", len(starts))
	}
	if starts[0].At != 0 || starts[1].At != 0.5 {
		t.Fatalf("expected gapless starts at 0 and 0.5, got %v and %v", starts[0].At, starts[1].At)
	}
	snap = h.ctrl.Snapshot()
	if snap.StreamStatus != StreamCompleted || snap.Status != "Playing • Complete" || snap.BufferedSeconds != 0.75 {
		t.Fatalf("unexpected snapshot after complete: %+v", snap)
	}

	h.clock.Advance(0.5)
	if got := h.ctrl.Snapshot().Phase; got != PhasePlaying {
		t.Fatalf("expected still playing mid-way, got %s", got)
	}
	h.clock.Advance(0.25)
	snap = h.ctrl.Snapshot()
	if snap.Phase != PhaseCompleted || snap.IsPlaying || snap.Status != "Ready • Complete" {
		t.Fatalf("expected completed, got %+v", snap)
	}
	if !snap.HasAudioReady {
		t.Fatal("expected the cache to survive completion")
	}
	if h.acts.count(ActivitySessionStarted) != 1 || h.acts.count(ActivityChunkDecoded) != 2 || h.acts.count(ActivityPlaybackCompleted) != 1 {
		t.Fatalf("unexpected activity log %+v", h.acts.acts)
	}
}

func TestPlayWithoutText(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.PlayPause(); !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
	h.ctrl.SetText("$$ $$")
	if err := h.ctrl.PlayPause(); !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText for text that normalizes to nothing, got %v", err)
	}
	if h.streamer.count() != 0 {
		t.Fatal("no stream should be opened without text")
	}
}

func TestPauseResumeMidBuffer(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("two chunks")
	s := h.play(t)
	s.chunk("0.5")
	s.chunk("0.5")

	h.clock.Advance(0.75)
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhasePaused || snap.PausedOffset != 0.75 || snap.Status != "Paused • Processing..." {
		t.Fatalf("unexpected paused snapshot %+v", snap)
	}
	if h.clock.Active() != 0 {
		t.Fatalf("pause should stop every source, %d active", h.clock.Active())
	}

	h.clock.Advance(10)
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	starts := h.clock.Starts()
	resumed := starts[len(starts)-1]
	if resumed.At != 10.75 || resumed.Offset != 0.25 {
		t.Fatalf("expected resume inside second buffer at offset 0.25, got %+v", resumed)
	}
	if got := h.ctrl.Snapshot(); got.Phase != PhasePlaying || got.PausedOffset != 0 {
		t.Fatalf("expected playing with no paused offset, got %+v", got)
	}
	if h.streamer.count() != 1 {
		t.Fatal("resume must not open a new stream")
	}
}

func TestPauseThenStop(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("stop me")
	s := h.play(t)
	s.chunk("0.5")
	h.clock.Advance(0.25)

	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.ctrl.Stop()

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseStopped || snap.PausedOffset != 0 || snap.Status != "Stopped" {
		t.Fatalf("unexpected stopped snapshot %+v", snap)
	}
	if !s.isCancelled() {
		t.Fatal("stop should cancel the live stream")
	}
	if h.clock.Active() != 0 {
		t.Fatal("stop should leave no source running")
	}
	if !snap.HasAudioReady {
		t.Fatal("stop keeps the cache for replay")
	}

	// late events from the cancelled stream change nothing
	s.chunk("0.5")
	if got := h.ctrl.Snapshot().BufferedChunks; got != 1 {
		t.Fatalf("late chunk should be dropped, have %d buffers", got)
	}

	if err := h.ctrl.ReplayFromStart(); err != nil {
		t.Fatalf("replay after stop: %v", err)
	}
	if got := h.ctrl.Snapshot().Phase; got != PhasePlaying {
		t.Fatalf("expected playing after replay, got %s", got)
	}
	h.clock.Advance(0.5)
	if got := h.ctrl.Snapshot().Phase; got != PhaseCompleted {
		t.Fatalf("expected replay to complete, got %s", got)
	}
}

func TestReplayUsesCacheWithoutNewStream(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("replay me")
	s := h.play(t)
	s.chunk("0.5")
	s.chunk("0.5")
	s.complete(2)
	h.clock.Advance(1)
	if got := h.ctrl.Snapshot().Phase; got != PhaseCompleted {
		t.Fatalf("expected completed, got %s", got)
	}

	if err := h.ctrl.ReplayFromStart(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if h.streamer.count() != 1 {
		t.Fatalf("replay must not open a stream, have %d", h.streamer.count())
	}
	starts := h.clock.Starts()
	if len(starts) != 4 {
		t.Fatalf("expected both buffers rescheduled, got %d starts", len(starts))
	}
	if starts[2].At != 1 || starts[3].At != 1.5 || starts[2].Offset != 0 {
		t.Fatalf("unexpected replay schedule %+v", starts[2:])
	}
	if h.acts.count(ActivityReplayed) != 1 {
		t.Fatal("expected a replayed activity")
	}
}

func TestReplayWithoutCache(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.ReplayFromStart(); !errors.Is(err, ErrNothingCached) {
		t.Fatalf("expected ErrNothingCached, got %v", err)
	}
	h.ctrl.SetText("still loading")
	h.play(t)
	if err := h.ctrl.ReplayFromStart(); !errors.Is(err, ErrNothingCached) {
		t.Fatalf("expected ErrNothingCached while nothing decoded, got %v", err)
	}
}

func TestReplayLock(t *testing.T) {
	h := newHarness(t, Options{ReplayCooldown: time.Hour})
	h.ctrl.SetText("locked")
	s := h.play(t)
	s.chunk("0.5")

	if err := h.ctrl.ReplayFromStart(); err != nil {
		t.Fatalf("first replay: %v", err)
	}
	if !h.ctrl.Snapshot().IsPlaybackLocked {
		t.Fatal("expected playback lock after replay")
	}
	if err := h.ctrl.ReplayFromStart(); !errors.Is(err, ErrPlaybackLocked) {
		t.Fatalf("expected ErrPlaybackLocked, got %v", err)
	}
	h.ctrl.Cleanup()
	if h.ctrl.Snapshot().IsPlaybackLocked {
		t.Fatal("cleanup should release the replay lock")
	}
}

func TestReplayLockReleases(t *testing.T) {
	h := newHarness(t, Options{ReplayCooldown: 10 * time.Millisecond})
	h.ctrl.SetText("unlocks")
	s := h.play(t)
	s.chunk("0.5")
	if err := h.ctrl.ReplayFromStart(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.ctrl.Snapshot().IsPlaybackLocked {
		if time.Now().After(deadline) {
			t.Fatal("replay lock never released")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := h.ctrl.ReplayFromStart(); err != nil {
		t.Fatalf("second replay after cooldown: %v", err)
	}
}

func TestRestartKeepsOneConnection(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("again and again")

	first := h.play(t)
	first.chunk("0.5")
	h.ctrl.Stop()
	second := h.play(t)

	if !first.isCancelled() {
		t.Fatal("first stream should be cancelled before the second starts")
	}
	if h.streamer.live() != 1 {
		t.Fatalf("expected exactly one live stream, got %d", h.streamer.live())
	}
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseConnecting || snap.BufferedChunks != 0 {
		t.Fatalf("restart should begin a fresh session, got %+v", snap)
	}

	first.chunk("0.5")
	first.complete(1)
	if got := h.ctrl.Snapshot(); got.BufferedChunks != 0 || got.StreamStatus != StreamConnecting {
		t.Fatalf("events from the old stream leaked into the new session: %+v", got)
	}

	second.chunk("0.25")
	second.complete(1)
	h.clock.Advance(0.25)
	if got := h.ctrl.Snapshot().Phase; got != PhaseCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	third := h.play(t)
	if !second.isCancelled() || third.isCancelled() || h.streamer.live() != 1 {
		t.Fatal("play after completion should replace the previous stream")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("tear me down")
	s := h.play(t)
	s.chunk("0.5")

	var snaps []Snapshot
	unsubscribe := h.ctrl.Subscribe(func(snap Snapshot) { snaps = append(snaps, snap) })
	defer unsubscribe()

	h.ctrl.Cleanup()
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.SessionID != "" || snap.HasAudioReady || snap.Status != "Ready" {
		t.Fatalf("expected fully reset state, got %+v", snap)
	}
	if !s.isCancelled() || h.clock.Active() != 0 {
		t.Fatal("cleanup should cancel the stream and stop every source")
	}

	h.ctrl.Cleanup()
	h.ctrl.Cleanup()
	if n := h.acts.count(ActivityTornDown); n != 1 {
		t.Fatalf("expected exactly one teardown, got %d", n)
	}
	if len(snaps) != 1 {
		t.Fatalf("repeated cleanup should not notify, got %d notifications", len(snaps))
	}
}

func TestStageChangeTearsDown(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("question one")
	s := h.play(t)
	s.chunk("0.5")

	if !h.ctrl.StageChanged("quiz") {
		t.Fatal("expected a teardown on stage change")
	}
	if h.ctrl.StageChanged("quiz") {
		t.Fatal("second stage change has nothing to tear down")
	}
	if !s.isCancelled() || h.ctrl.Snapshot().Phase != PhaseIdle {
		t.Fatal("stage change should cancel and reset")
	}
	// the text survives, so play starts a new session
	h.play(t)
	if h.streamer.count() != 2 {
		t.Fatal("expected a second stream after stage change")
	}
}

func TestSetTextTearsDown(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("first")
	s := h.play(t)

	h.ctrl.SetText("first")
	if s.isCancelled() {
		t.Fatal("same text should not tear down")
	}
	h.ctrl.SetText("second")
	if !s.isCancelled() || h.ctrl.Snapshot().Phase != PhaseIdle {
		t.Fatal("new text should tear down the session")
	}
	if h.ctrl.Text() != "second" {
		t.Fatalf("unexpected text %q", h.ctrl.Text())
	}
}

func TestStreamErrorKeepsCachedAudio(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("flaky network")
	s := h.play(t)
	s.chunk("0.5")
	s.cb.OnError(errors.New("connection reset"))

	snap := h.ctrl.Snapshot()
	if snap.StreamStatus != StreamError || snap.Error != "connection reset" || snap.Phase != PhasePlaying {
		t.Fatalf("unexpected snapshot after error %+v", snap)
	}
	if !s.isCancelled() {
		t.Fatal("errored stream should be cancelled")
	}
	h.clock.Advance(0.5)
	if got := h.ctrl.Snapshot().Phase; got != PhaseCompleted {
		t.Fatalf("cached audio should finish playing, got %s", got)
	}
	if h.streamer.count() != 1 {
		t.Fatal("errors must not be retried")
	}
}

func TestServerErrorBeforeAudio(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("rate limited")
	s := h.play(t)
	s.cb.OnEvent(stream.Event{Type: stream.EventError, Message: "quota exceeded"})

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.StreamStatus != StreamError || snap.Error != "quota exceeded" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Status != "Ready" {
		t.Fatalf("unexpected status text %q", snap.Status)
	}
	if h.acts.count(ActivityStreamFailed) != 1 {
		t.Fatal("expected a stream_failed activity")
	}

	// a second terminal callback is ignored
	s.cb.OnComplete()
	if got := h.ctrl.Snapshot().StreamStatus; got != StreamError {
		t.Fatalf("stream status changed after error: %s", got)
	}
}

func TestUndecodableChunkIsSkipped(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("gap")
	s := h.play(t)
	s.chunk("0.5")
	s.chunk("not audio")
	s.chunk("0.25")
	s.complete(3)

	snap := h.ctrl.Snapshot()
	if snap.SkippedChunks != 1 || snap.BufferedChunks != 2 {
		t.Fatalf("expected one skipped chunk and two buffers, got %+v", snap)
	}
	starts := h.clock.Starts()
	if starts[1].At != 0.5 {
		t.Fatalf("skipped chunk should not leave a gap in the schedule, got %v", starts[1].At)
	}
	if h.acts.count(ActivityChunkSkipped) != 1 {
		t.Fatal("expected a chunk_skipped activity")
	}
}

func TestCompleteWithoutAudio(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("silence")
	s := h.play(t)
	s.status()
	s.complete(0)
	if got := h.ctrl.Snapshot(); got.Phase != PhaseCompleted || got.StreamStatus != StreamCompleted {
		t.Fatalf("expected completed with nothing to play, got %+v", got)
	}
	if n := h.acts.count(ActivityPlaybackCompleted); n != 1 {
		t.Fatalf("expected one playback completion, got %d", n)
	}
}

func TestResumeAfterEmptyStreamCompletes(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("silence")
	s := h.play(t)
	s.status()
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	s.complete(0)
	if got := h.ctrl.Snapshot().Phase; got != PhasePaused {
		t.Fatalf("expected to stay paused, got %s", got)
	}
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if n := h.acts.count(ActivityPlaybackCompleted); n != 1 {
		t.Fatalf("expected one playback completion, got %d", n)
	}
}

func TestCleanupSurvivesBrokenStream(t *testing.T) {
	h := newHarness(t, Options{})
	h.streamer.broken = true
	h.ctrl.SetText("fragile")
	s := h.play(t)
	s.status()
	s.chunk("0.5")
	s.chunk("0.5")
	if h.clock.Active() != 2 {
		t.Fatalf("expected two sources on the clock, got %d", h.clock.Active())
	}

	h.ctrl.Cleanup()
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.SessionID != "" || snap.BufferedChunks != 0 {
		t.Fatalf("cleanup should finish despite the cancel panic, got %+v", snap)
	}
	if h.clock.Active() != 0 {
		t.Fatal("sources must be stopped even when cancelling the stream fails")
	}
	if n := h.acts.count(ActivityTornDown); n != 1 {
		t.Fatalf("expected one teardown, got %d", n)
	}
}

func TestPauseDuringDecode(t *testing.T) {
	dec := durationDecoder{gate: make(chan struct{}), entered: make(chan struct{})}
	h := newHarnessWithDecoder(t, Options{}, dec)
	h.ctrl.SetText("race")
	s := h.play(t)
	s.status()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.chunk("0.5")
	}()
	<-dec.entered
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(dec.gate)
	<-done

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhasePaused || snap.BufferedChunks != 1 {
		t.Fatalf("chunk decoded during pause should be cached only, got %+v", snap)
	}
	if h.clock.Active() != 0 || len(h.clock.Starts()) != 0 {
		t.Fatal("nothing should be scheduled while paused")
	}

	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	starts := h.clock.Starts()
	if len(starts) != 1 || starts[0].Offset != 0 {
		t.Fatalf("expected resume from the start of the cached chunk, got %+v", starts)
	}
	if got := h.ctrl.Snapshot().Phase; got != PhasePlaying {
		t.Fatalf("expected playing, got %s", got)
	}
}

func TestResumeWithEmptyCacheReturnsToLoading(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("slow server")
	s := h.play(t)
	s.status()
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := h.ctrl.PlayPause(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseStreaming {
		t.Fatalf("expected streaming, got %s", got)
	}
	s.chunk("0.5")
	if got := h.ctrl.Snapshot().Phase; got != PhasePlaying {
		t.Fatalf("first chunk after resume should play, got %s", got)
	}
}

func TestClosedController(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetText("bye")
	s := h.play(t)
	h.ctrl.Close()
	if !s.isCancelled() {
		t.Fatal("close should cancel the stream")
	}
	if err := h.ctrl.PlayPause(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := h.ctrl.ReplayFromStart(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	h.ctrl.Close()
}

func TestSubscribersSeeOrderedSnapshots(t *testing.T) {
	h := newHarness(t, Options{})
	var seqs []uint64
	var phases []Phase
	h.ctrl.Subscribe(func(snap Snapshot) {
		seqs = append(seqs, snap.Seq)
		phases = append(phases, snap.Phase)
	})
	h.ctrl.SetText("observe")
	s := h.play(t)
	s.chunk("0.5")
	h.ctrl.Stop()

	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence numbers not increasing: %v", seqs)
		}
	}
	if phases[len(phases)-1] != PhaseStopped {
		t.Fatalf("last notification should be stopped, got %v", phases)
	}
}

func TestStatusText(t *testing.T) {
	cases := []struct {
		phase    Phase
		stream   StreamStatus
		hasAudio bool
		want     string
	}{
		{PhaseIdle, StreamIdle, false, "Ready"},
		{PhaseConnecting, StreamConnecting, false, "Loading"},
		{PhaseStreaming, StreamStreaming, false, "Loading"},
		{PhasePlaying, StreamStreaming, true, "Playing • Live"},
		{PhasePlaying, StreamCompleted, true, "Playing • Complete"},
		{PhasePaused, StreamStreaming, true, "Paused • Processing..."},
		{PhasePaused, StreamCompleted, true, "Paused • Complete"},
		{PhaseStopped, StreamIdle, true, "Stopped"},
		{PhaseCompleted, StreamCompleted, true, "Ready • Complete"},
		{PhaseIdle, StreamError, false, "Ready"},
	}
	for _, tc := range cases {
		if got := StatusText(tc.phase, tc.stream, tc.hasAudio); got != tc.want {
			t.Errorf("StatusText(%s, %s, %v) = %q, want %q", tc.phase, tc.stream, tc.hasAudio, got, tc.want)
		}
	}
}
