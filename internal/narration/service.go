package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/playback"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/textnorm"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/loqalabs/loqa-narrator/narration"

	activityBuffer = 256
	pruneInterval  = time.Hour
	storeTimeout   = 5 * time.Second
)

var errUnknownAction = errors.New("unknown narration action")

type playerActivity struct {
	playerID string
	act      Activity
}

// Service exposes narration players on the bus: commands and stage changes
// come in, status goes out, activity lands in the event store.
type Service struct {
	cfg      config.NarrationConfig
	playback config.PlaybackConfig
	bus      *bus.Client
	store    *eventstore.Store
	streamer Streamer
	decoder  Decoder
	norm     Normalizer
	language textnorm.Language
	registry *Registry

	subs     []*nats.Subscription
	activity chan playerActivity
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
	tracer   trace.Tracer

	sessions  metric.Int64Counter
	chunks    metric.Int64Counter
	skipped   metric.Int64Counter
	failures  metric.Int64Counter
	teardowns metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewService wires players to the bus. decoder turns stream chunks into PCM
// for every player; audio.NewDecoder is the production choice.
func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, store *eventstore.Store, streamer Streamer, decoder Decoder, log *slog.Logger) (*Service, error) {
	lang, err := textnorm.ParseLanguage(cfg.Narration.Language)
	if err != nil {
		return nil, err
	}
	norm, err := textnorm.NewNormalizer(cfg.Narration.NormalizerCache)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg.Narration,
		playback: cfg.Playback,
		bus:      busClient,
		store:    store,
		streamer: streamer,
		decoder:  decoder,
		norm:     norm,
		language: lang,
		activity: make(chan playerActivity, activityBuffer),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "narration-service")),
		tracer:   otel.Tracer(instrumentationName),
	}
	s.registry = NewRegistry(ctx, time.Duration(cfg.Narration.IdleTimeoutMS)*time.Millisecond, s.newController, log)
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s, nil
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := s.bus.EnsureLastValueStream(protocol.StreamNarrationStatus, protocol.SubjectNarrationStatusPrefix+".>"); err != nil {
		s.logger.Warn("status stream unavailable; last status will not be retained", slogError(err))
	}
	conn := s.bus.Conn()
	cmdSub, err := conn.Subscribe(protocol.SubjectNarrationCommand, s.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe narration commands: %w", err)
	}
	s.subs = append(s.subs, cmdSub)
	stageSub, err := conn.Subscribe(protocol.SubjectStageChanged, s.handleStageChange)
	if err != nil {
		return fmt.Errorf("subscribe stage changes: %w", err)
	}
	s.subs = append(s.subs, stageSub)

	s.wg.Add(1)
	go s.runActivity()
	return nil
}

func (s *Service) Close() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.registry.Close()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || len(s.subs) == 2 }

// Registry exposes the players for in-process callers.
func (s *Service) Registry() *Registry { return s.registry }

// LastStatus reads the newest status retained for a player.
func (s *Service) LastStatus(playerID string) (protocol.PlayerStatus, error) {
	var status protocol.PlayerStatus
	data, err := s.bus.LastMessage(protocol.StreamNarrationStatus, protocol.StatusSubject(playerID))
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, fmt.Errorf("decode player status: %w", err)
	}
	return status, nil
}

func (s *Service) newController(playerID string) (*Controller, error) {
	logger := s.logger.With(slog.String("player_id", playerID))
	sink, err := playback.NewSink(s.playback, s.bus, playerID, logger)
	if err != nil {
		return nil, err
	}
	clock := playback.NewSystemClock(s.ctx, sink, logger)
	ctrl := NewController(s.ctx, Options{
		APIBaseURL:     s.cfg.APIBaseURL,
		Token:          s.cfg.APIToken,
		UserID:         s.cfg.DefaultUserID,
		ChunkSize:      s.cfg.ChunkSize,
		Language:       s.language,
		ReplayCooldown: time.Duration(s.cfg.ReplayCooldownMS) * time.Millisecond,
		Normalizer:     s.norm,
		OnActivity:     func(act Activity) { s.recordActivity(playerID, act) },
	}, s.streamer, s.decoder, clock, logger)
	ctrl.Subscribe(func(snap Snapshot) { s.publishStatus(playerID, snap) })
	return ctrl, nil
}

func (s *Service) handleCommand(msg *nats.Msg) {
	var cmd protocol.NarrationCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("failed to decode narration command", slogError(err))
		s.reply(msg, protocol.PlayerStatus{CommandError: err.Error(), Timestamp: time.Now().UTC()})
		return
	}
	if cmd.PlayerID == "" {
		s.reply(msg, protocol.PlayerStatus{CommandError: "player_id is required", Timestamp: time.Now().UTC()})
		return
	}
	_, span := s.tracer.Start(s.ctx, "narration.command", trace.WithAttributes(
		attribute.String("narration.player_id", cmd.PlayerID),
		attribute.String("narration.action", cmd.Action),
	))
	defer span.End()

	ctrl, err := s.registry.Acquire(cmd.PlayerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.reply(msg, protocol.PlayerStatus{PlayerID: cmd.PlayerID, CommandError: err.Error(), Timestamp: time.Now().UTC()})
		return
	}

	err = s.apply(ctrl, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Info("narration command rejected",
			slog.String("player_id", cmd.PlayerID),
			slog.String("action", cmd.Action),
			slogError(err))
	}
	status := statusFrom(cmd.PlayerID, ctrl.Snapshot())
	if err != nil {
		status.CommandError = err.Error()
	}
	s.reply(msg, status)
}

func (s *Service) apply(ctrl *Controller, cmd protocol.NarrationCommand) error {
	switch cmd.Action {
	case protocol.ActionSetText:
		if err := s.configure(ctrl, cmd); err != nil {
			return err
		}
		ctrl.SetText(cmd.Text)
		return nil
	case protocol.ActionPlayPause:
		if err := s.configure(ctrl, cmd); err != nil {
			return err
		}
		if cmd.Text != "" {
			ctrl.SetText(cmd.Text)
		}
		return ctrl.PlayPause()
	case protocol.ActionStop:
		ctrl.Stop()
		return nil
	case protocol.ActionReplay:
		return ctrl.ReplayFromStart()
	case protocol.ActionCleanup:
		ctrl.Cleanup()
		return nil
	case protocol.ActionStatus:
		return nil
	default:
		return fmt.Errorf("%w %q", errUnknownAction, cmd.Action)
	}
}

func (s *Service) configure(ctrl *Controller, cmd protocol.NarrationCommand) error {
	if cmd.Language != "" {
		lang, err := textnorm.ParseLanguage(cmd.Language)
		if err != nil {
			return err
		}
		ctrl.SetLanguage(lang)
	}
	if cmd.UserID != "" {
		ctrl.SetUserID(cmd.UserID)
	}
	return nil
}

func (s *Service) handleStageChange(msg *nats.Msg) {
	var change protocol.StageChange
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		s.logger.Warn("failed to decode stage change", slogError(err))
		return
	}
	if change.PlayerID == "" {
		s.registry.Each(func(_ string, c *Controller) { c.StageChanged(change.Stage) })
		return
	}
	if ctrl, ok := s.registry.Get(change.PlayerID); ok {
		ctrl.StageChanged(change.Stage)
	}
}

func (s *Service) reply(msg *nats.Msg, status protocol.PlayerStatus) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal command reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to reply to command", slogError(err))
	}
}

func (s *Service) publishStatus(playerID string, snap Snapshot) {
	if err := s.bus.PublishJSON(protocol.StatusSubject(playerID), statusFrom(playerID, snap)); err != nil {
		s.logger.Warn("failed to publish player status", slog.String("player_id", playerID), slogError(err))
	}
}

func statusFrom(playerID string, snap Snapshot) protocol.PlayerStatus {
	return protocol.PlayerStatus{
		PlayerID:         playerID,
		SessionID:        snap.SessionID,
		Phase:            string(snap.Phase),
		StreamStatus:     string(snap.StreamStatus),
		Status:           snap.Status,
		IsPlaying:        snap.IsPlaying,
		IsPaused:         snap.IsPaused,
		HasAudioReady:    snap.HasAudioReady,
		IsPlaybackLocked: snap.IsPlaybackLocked,
		PausedOffset:     snap.PausedOffset,
		BufferedChunks:   snap.BufferedChunks,
		BufferedSeconds:  snap.BufferedSeconds,
		SkippedChunks:    snap.SkippedChunks,
		Language:         snap.Language,
		Error:            snap.Error,
		Sequence:         snap.Seq,
		Timestamp:        time.Now().UTC(),
	}
}

// recordActivity runs under a controller lock and must not block.
func (s *Service) recordActivity(playerID string, act Activity) {
	select {
	case s.activity <- playerActivity{playerID: playerID, act: act}:
	default:
		if s.dropped != nil {
			s.dropped.Add(context.Background(), 1)
		}
	}
}

func (s *Service) runActivity() {
	defer s.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	ended := make(map[string]bool)
	for {
		select {
		case <-s.ctx.Done():
			for {
				select {
				case pa := <-s.activity:
					s.countActivity(pa.act)
					s.persist(pa, ended)
				default:
					return
				}
			}
		case pa := <-s.activity:
			s.countActivity(pa.act)
			s.persist(pa, ended)
		case <-ticker.C:
			if s.store == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
			if err := s.store.Prune(ctx); err != nil {
				s.logger.Warn("event store prune failed", slogError(err))
			}
			cancel()
		}
	}
}

func (s *Service) countActivity(act Activity) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("language", act.Language))
	switch act.Kind {
	case ActivitySessionStarted:
		if s.sessions != nil {
			s.sessions.Add(ctx, 1, attrs)
		}
	case ActivityChunkDecoded:
		if s.chunks != nil {
			s.chunks.Add(ctx, 1, attrs)
		}
	case ActivityChunkSkipped:
		if s.skipped != nil {
			s.skipped.Add(ctx, 1, attrs)
		}
	case ActivityStreamFailed:
		if s.failures != nil {
			s.failures.Add(ctx, 1, attrs)
		}
	case ActivityTornDown:
		if s.teardowns != nil {
			s.teardowns.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", act.Detail)))
		}
	}
}

// persist writes one activity to the store. A session's outcome is the last
// of completed, stopped or failed; torn_down only applies when nothing else
// was recorded.
func (s *Service) persist(pa playerActivity, ended map[string]bool) {
	act := pa.act
	if s.store == nil || act.SessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if act.Kind == ActivitySessionStarted {
		err := s.store.BeginSession(ctx, eventstore.SessionRecord{
			SessionID:  act.SessionID,
			PlayerID:   pa.playerID,
			UserID:     act.UserID,
			Language:   act.Language,
			TextLength: act.TextLength,
			CreatedAt:  act.At,
		})
		if err != nil {
			s.logger.Warn("failed to record narration session", slogError(err))
			return
		}
	}

	payload, err := json.Marshal(act)
	if err != nil {
		s.logger.Warn("failed to marshal activity", slogError(err))
		return
	}
	if err := s.store.AppendEvent(ctx, eventstore.Event{
		SessionID: act.SessionID,
		PlayerID:  pa.playerID,
		Type:      string(act.Kind),
		Payload:   payload,
		CreatedAt: act.At,
	}); err != nil {
		s.logger.Warn("failed to record activity", slog.String("kind", string(act.Kind)), slogError(err))
	}

	outcome := ""
	switch act.Kind {
	case ActivityPlaybackCompleted:
		outcome = "completed"
	case ActivityStopped:
		outcome = "stopped"
	case ActivityStreamFailed:
		outcome = "failed"
	case ActivityTornDown:
		if !ended[act.SessionID] {
			outcome = "torn_down"
		}
		delete(ended, act.SessionID)
	}
	if outcome == "" {
		return
	}
	if act.Kind != ActivityTornDown {
		ended[act.SessionID] = true
	}
	if err := s.store.EndSession(ctx, act.SessionID, outcome); err != nil {
		s.logger.Warn("failed to close narration session", slogError(err))
	}
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	if s.sessions, err = meter.Int64Counter("loqa.narration.sessions", metric.WithDescription("Narration sessions started")); err != nil {
		return err
	}
	if s.chunks, err = meter.Int64Counter("loqa.narration.chunks", metric.WithDescription("Audio chunks decoded and scheduled")); err != nil {
		return err
	}
	if s.skipped, err = meter.Int64Counter("loqa.narration.chunks.skipped", metric.WithDescription("Audio chunks that failed to decode")); err != nil {
		return err
	}
	if s.failures, err = meter.Int64Counter("loqa.narration.stream.errors", metric.WithDescription("Narration streams that failed")); err != nil {
		return err
	}
	if s.teardowns, err = meter.Int64Counter("loqa.narration.teardowns", metric.WithDescription("Player teardowns by reason")); err != nil {
		return err
	}
	if s.dropped, err = meter.Int64Counter("loqa.narration.activity.dropped", metric.WithDescription("Activity records dropped because the recorder fell behind")); err != nil {
		return err
	}
	return nil
}
