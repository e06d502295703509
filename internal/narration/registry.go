package narration

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Factory builds the controller for a newly seen player.
type Factory func(playerID string) (*Controller, error)

type player struct {
	id         string
	controller *Controller
	lastUsed   time.Time
}

// Registry holds one Controller per player id and evicts players that sat
// idle longer than the configured timeout.
type Registry struct {
	factory Factory
	idle    time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	players map[string]*player
	closed  bool

	cancel context.CancelFunc
	meter  metric.Meter
}

var errRegistryClosed = errors.New("player registry closed")

func NewRegistry(ctx context.Context, idleTimeout time.Duration, factory Factory, log *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		factory: factory,
		idle:    idleTimeout,
		log:     log.With(slog.String("component", "player-registry")),
		now:     time.Now,
		players: make(map[string]*player),
		cancel:  cancel,
		meter:   otel.Meter(instrumentationName),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if idleTimeout > 0 {
		go r.monitorIdle(ctx)
	}
	return r
}

// Acquire returns the player's controller, creating it on first use.
func (r *Registry) Acquire(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errRegistryClosed
	}
	if p, ok := r.players[id]; ok {
		p.lastUsed = r.now()
		return p.controller, nil
	}
	ctrl, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	r.players[id] = &player{id: id, controller: ctrl, lastUsed: r.now()}
	r.log.Info("player registered", slog.String("player_id", id))
	return ctrl, nil
}

func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return nil, false
	}
	return p.controller, true
}

// Each calls fn for every player in id order, outside the registry lock.
func (r *Registry) Each(fn func(id string, c *Controller)) {
	r.mu.RLock()
	players := make([]*player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.RUnlock()
	sort.Slice(players, func(i, j int) bool { return players[i].id < players[j].id })
	for _, p := range players {
		fn(p.id, p.controller)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Remove closes and forgets a player.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	p, ok := r.players[id]
	delete(r.players, id)
	r.mu.Unlock()
	if ok {
		p.controller.Close()
	}
	return ok
}

// Close closes every controller. Later Acquire calls fail.
func (r *Registry) Close() {
	r.cancel()
	r.mu.Lock()
	r.closed = true
	players := r.players
	r.players = make(map[string]*player)
	r.mu.Unlock()
	for _, p := range players {
		p.controller.Close()
	}
}

func (r *Registry) monitorIdle(ctx context.Context) {
	interval := r.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle removes players untouched for longer than the idle timeout.
// Players still playing or loading are kept.
func (r *Registry) evictIdle() []string {
	if r.idle <= 0 {
		return nil
	}
	now := r.now()
	r.mu.Lock()
	var evicted []*player
	for id, p := range r.players {
		if now.Sub(p.lastUsed) <= r.idle {
			continue
		}
		switch p.controller.Snapshot().Phase {
		case PhasePlaying, PhaseConnecting, PhaseStreaming:
			continue
		}
		delete(r.players, id)
		evicted = append(evicted, p)
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, p := range evicted {
		p.controller.Close()
		ids = append(ids, p.id)
		r.log.Info("evicted idle player", slog.String("player_id", p.id))
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	active, err := r.meter.Int64ObservableGauge("loqa.narration.players", metric.WithDescription("Number of registered players"))
	if err != nil {
		return err
	}
	playing, err := r.meter.Int64ObservableGauge("loqa.narration.players.playing", metric.WithDescription("Players currently playing audio"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		total, live := r.snapshotCounts()
		obs.ObserveInt64(active, total)
		obs.ObserveInt64(playing, live)
		return nil
	}, active, playing)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total, playing int64
	for _, p := range r.players {
		total++
		if p.controller.Snapshot().IsPlaying {
			playing++
		}
	}
	return total, playing
}
