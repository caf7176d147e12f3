// Package scheduler keeps the reachable-range estimate of every active
// pursuit track fresh on a fixed cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pursuit-ops/isochroned/internal/logging"
	"github.com/pursuit-ops/isochroned/internal/notify"
	"github.com/pursuit-ops/isochroned/internal/storage"
	"github.com/pursuit-ops/isochroned/internal/strategy/circle"
	"github.com/pursuit-ops/isochroned/internal/traffic"
	"github.com/pursuit-ops/isochroned/pkg/core"
	"github.com/pursuit-ops/isochroned/pkg/streaming"
)

const (
	DefaultInterval            = 20 * time.Second
	DefaultAbsoluteMaxDuration = 4 * time.Hour
)

var (
	// ErrBusy is returned by ComputeNow while a tick is running.
	ErrBusy = errors.New("scheduler busy")
	// ErrNotActive is returned by ComputeNow for a track that is not active.
	ErrNotActive = errors.New("track not active")
	// ErrNotImmediate is returned by ComputeNow for a track that is not
	// flagged for an immediate first computation or was already computed.
	ErrNotImmediate = errors.New("track not eligible for immediate compute")
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Recorder receives one summary per persisted computation.
type Recorder interface {
	RecordComputation(ctx context.Context, c core.Computation)
}

// Runner computes a result for a request given the previous state of the
// track. The returned state replaces the previous one.
type Runner func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error)

// Config holds scheduler timing.
type Config struct {
	Interval            time.Duration
	AbsoluteMaxDuration time.Duration
}

// Dependencies are the collaborators injected into the Scheduler.
// Traffic is the process-wide sample cache; its budget is reset at the
// start of every tick.
type Dependencies struct {
	Store    storage.Store
	Notifier notify.Notifier
	Traffic  *traffic.Cache
	Runners  map[core.Strategy]Runner
	Recorder Recorder
	Logger   Logger
	Clock    func() time.Time
}

const (
	idle int32 = iota
	running
)

// Scheduler runs ticks.
type Scheduler struct {
	cfg      Config
	store    storage.Store
	notifier notify.Notifier
	traffic  *traffic.Cache
	runners  map[core.Strategy]Runner
	recorder Recorder
	logger   Logger
	clock    func() time.Time
	metrics  *metrics

	bootedAt time.Time
	state    atomic.Int32
	wg       sync.WaitGroup
}

// New creates a Scheduler. The boot time used to tell stale tracks from
// current ones is taken from the clock here.
func New(cfg Config, deps Dependencies) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AbsoluteMaxDuration <= 0 {
		cfg.AbsoluteMaxDuration = DefaultAbsoluteMaxDuration
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	runners := map[core.Strategy]Runner{core.StrategyCircle: CircleRunner}
	for k, r := range deps.Runners {
		runners[k] = r
	}

	return &Scheduler{
		cfg:      cfg,
		store:    deps.Store,
		notifier: deps.Notifier,
		traffic:  deps.Traffic,
		runners:  runners,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		clock:    deps.Clock,
		metrics:  m,
		bootedAt: deps.Clock(),
	}, nil
}

// Run ticks every interval until ctx is cancelled. Ticks run in their own
// goroutine so a slow tick causes the next ones to be dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// RepairStale stops every active track started before boot. Their state
// belongs to a previous process and is not resumed.
func (s *Scheduler) RepairStale(ctx context.Context) (int64, error) {
	n, err := s.store.StopActiveStartedBefore(ctx, s.bootedAt)
	if err != nil {
		return 0, fmt.Errorf("repair stale tracks: %w", err)
	}
	if n > 0 {
		s.logger.Info("stopped stale tracks from previous run", "count", n)
	}
	return n, nil
}

// Tick runs one scheduling pass. It returns false when the pass was dropped
// because another one was still running.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.state.CompareAndSwap(idle, running) {
		s.logger.Warn("tick dropped, previous tick still running")
		s.metrics.dropped.Add(ctx, 1)
		return false
	}
	defer s.state.Store(idle)

	s.metrics.ticks.Add(ctx, 1)
	s.tick(ctx)
	return true
}

// ComputeNow computes the first isochrone of a track flagged for an
// immediate first computation, without waiting for its cadence. The track
// is subject to the same single-active and expiry rules as in a tick.
func (s *Scheduler) ComputeNow(ctx context.Context, id uint) (*core.TrackCache, error) {
	if !s.state.CompareAndSwap(idle, running) {
		return nil, ErrBusy
	}
	defer s.state.Store(idle)

	now := s.clock()
	t, err := s.store.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != core.StatusActive {
		return nil, ErrNotActive
	}
	if !t.ImmediateFirstCompute || t.LastComputedAt != nil {
		return nil, ErrNotImmediate
	}
	ctx = logging.WithTrack(ctx, t.ID, t.MissionID)

	active, err := s.store.ListActiveTracks(ctx, s.bootedAt)
	if err != nil {
		return nil, fmt.Errorf("list active tracks: %w", err)
	}
	var mission []core.Track
	for _, o := range active {
		if o.MissionID == t.MissionID {
			mission = append(mission, o)
		}
	}
	if ids := s.enforceSingleActive(ctx, mission); len(ids) != 1 || ids[0] != t.ID {
		return nil, fmt.Errorf("track %d superseded: %w", t.ID, ErrNotActive)
	}

	if elapsed, maxDuration := s.elapsed(t, now); elapsed >= maxDuration {
		s.expire(ctx, t)
		return nil, fmt.Errorf("track %d expired: %w", t.ID, ErrNotActive)
	}

	if s.traffic != nil {
		s.traffic.ResetBudget()
	}
	return s.process(ctx, t, now)
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock()
	if s.traffic != nil {
		s.traffic.ResetBudget()
	}

	tracks, err := s.store.ListActiveTracks(ctx, s.bootedAt)
	if err != nil {
		s.logger.Error("failed to list active tracks", "error", err)
		return
	}

	ids := s.enforceSingleActive(ctx, tracks)
	for _, id := range ids {
		s.safeProcess(ctx, id, now)
	}

	if s.traffic != nil {
		s.logger.Debug("tick finished",
			"tracks", len(ids),
			"trafficSamples", s.traffic.Len(),
			"trafficLookupsLeft", s.traffic.Budget().Remaining())
	}
}

// enforceSingleActive keeps the most recently started active track of each
// mission and stops the others. It returns the ids of the survivors.
func (s *Scheduler) enforceSingleActive(ctx context.Context, tracks []core.Track) []uint {
	newest := make(map[uint]core.Track)
	for _, t := range tracks {
		cur, ok := newest[t.MissionID]
		if !ok || newer(t, cur) {
			newest[t.MissionID] = t
		}
	}

	for _, t := range tracks {
		if keep := newest[t.MissionID]; keep.ID == t.ID {
			continue
		}
		stopped := core.StatusStopped
		ok, err := s.store.UpdateTrackIfStatus(ctx, t.ID, core.StatusActive, core.TrackUpdate{
			Status:     &stopped,
			ClearCache: true,
		})
		if err != nil {
			s.logger.Error("failed to stop superseded track", "track", t.ID, "mission", t.MissionID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.logger.Info("stopped superseded track", "track", t.ID, "mission", t.MissionID)
		s.emit(ctx, streaming.TypeTrackStopped, t, core.StatusStopped, nil)
	}

	ids := make([]uint, 0, len(newest))
	for _, t := range newest {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func newer(a, b core.Track) bool {
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.After(b.StartedAt)
	}
	return a.ID > b.ID
}

// safeProcess isolates one track from the rest of the tick.
func (s *Scheduler) safeProcess(ctx context.Context, id uint, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing track", "track", id, "panic", fmt.Sprint(r))
		}
	}()

	t, err := s.store.GetTrack(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("failed to reload track", "track", id, "error", err)
		return
	}
	if t.Status != core.StatusActive {
		return
	}
	ctx = logging.WithTrack(ctx, t.ID, t.MissionID)

	elapsed, maxDuration := s.elapsed(t, now)
	if elapsed >= maxDuration {
		s.expire(ctx, t)
		return
	}
	if !s.due(t, now) {
		return
	}

	_, err = s.process(ctx, t, now)
	if err != nil && !errors.Is(err, ErrNotActive) {
		s.logger.Error("failed to persist computation", "track", id, "error", err)
	}
}

// elapsed returns the clamped elapsed time and the effective max duration.
func (s *Scheduler) elapsed(t *core.Track, now time.Time) (time.Duration, time.Duration) {
	maxDuration := s.cfg.AbsoluteMaxDuration
	if d := time.Duration(t.MaxDurationSeconds) * time.Second; d > 0 && d < maxDuration {
		maxDuration = d
	}
	elapsed := now.Sub(t.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > maxDuration {
		elapsed = maxDuration
	}
	return elapsed, maxDuration
}

// due applies the recompute cadence. The first computation is measured
// from the track start unless the track asked for an immediate one.
func (s *Scheduler) due(t *core.Track, now time.Time) bool {
	if t.LastComputedAt == nil && t.ImmediateFirstCompute {
		return true
	}
	interval := time.Duration(t.RecomputeIntervalSeconds) * time.Second
	if interval <= 0 {
		return true
	}
	ref := t.StartedAt
	if t.LastComputedAt != nil {
		ref = *t.LastComputedAt
	}
	return now.Sub(ref) >= interval
}

func (s *Scheduler) expire(ctx context.Context, t *core.Track) {
	expired := core.StatusExpired
	ok, err := s.store.UpdateTrackIfStatus(ctx, t.ID, core.StatusActive, core.TrackUpdate{Status: &expired})
	if err != nil {
		s.logger.Error("failed to expire track", "track", t.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	s.logger.Info("track expired", "track", t.ID, "mission", t.MissionID)
	s.emit(ctx, streaming.TypeTrackExpired, *t, core.StatusExpired, nil)
}

// process computes, persists and announces one isochrone for t.
func (s *Scheduler) process(ctx context.Context, t *core.Track, now time.Time) (*core.TrackCache, error) {
	elapsed, _ := s.elapsed(t, now)
	req := core.Request{
		TrackID:        t.ID,
		Origin:         t.Origin.LngLat,
		ElapsedSeconds: elapsed.Seconds(),
		Profile:        t.Profile,
		Now:            now,
	}

	strategy := t.Strategy
	if _, ok := s.runners[strategy]; !ok {
		strategy = core.StrategyCircle
	}

	var prevRaw []byte
	if t.Cache != nil {
		prevRaw = t.Cache.State
	}
	prev := DecodeState(prevRaw, strategy)

	start := time.Now()
	res, next, err := s.run(ctx, strategy, req, prev)
	duration := time.Since(start)

	if reason, failed := failure(res, err); failed {
		s.logger.Warn("strategy failed, using circle estimate",
			"track", t.ID, "strategy", strategy, "reason", reason, "error", err)
		res = circle.Fallback(req, strategy, reason)
		next = prev
	}

	polygon, err := res.GeoJSON()
	if err != nil {
		return nil, err
	}
	state, err := next.Encode()
	if err != nil {
		return nil, err
	}

	cache := &core.TrackCache{
		ComputedAt:     now,
		ElapsedSeconds: req.ElapsedSeconds,
		Polygon:        polygon,
		Meta:           res.Meta,
		State:          state,
	}
	ok, err := s.store.UpdateTrackIfStatus(ctx, t.ID, core.StatusActive, core.TrackUpdate{
		Cache:          cache,
		LastComputedAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("persist track %d: %w", t.ID, err)
	}
	if !ok {
		s.logger.Debug("track left active state during computation", "track", t.ID)
		return nil, ErrNotActive
	}

	s.record(ctx, t, strategy, req, res, cache, duration)
	s.emit(ctx, streaming.TypeTrackRecomputed, *t, core.StatusActive, cache)
	return cache, nil
}

// run invokes the runner for strategy, converting a panic into an error.
func (s *Scheduler) run(ctx context.Context, strategy core.Strategy, req core.Request, prev StrategyState) (res core.Result, next StrategyState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s strategy panicked: %v", strategy, r)
		}
	}()
	return s.runners[strategy](ctx, req, prev)
}

// failure decides whether a strategy outcome needs the circle fallback.
// An empty result at zero elapsed time is a valid answer.
func failure(res core.Result, err error) (string, bool) {
	if err != nil {
		return core.ReasonFor(err), true
	}
	if res.Empty() && res.Meta.Reason != "" && res.Meta.Reason != core.ReasonZeroElapsed {
		return res.Meta.Reason, true
	}
	return "", false
}

func (s *Scheduler) record(ctx context.Context, t *core.Track, strategy core.Strategy, req core.Request, res core.Result, cache *core.TrackCache, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("strategy", string(strategy)),
		attribute.String("provider", string(res.Meta.Provider)),
	)
	s.metrics.computations.Add(ctx, 1, attrs)
	s.metrics.duration.Record(ctx, d.Seconds(), attrs)
	if res.Meta.Fallback {
		s.metrics.fallbacks.Add(ctx, 1, attrs)
	}

	raw, err := jsonMeta(res.Meta)
	if err != nil {
		s.logger.Error("failed to encode provider meta", "track", t.ID, "error", err)
	}
	if err := s.store.AppendHistory(ctx, core.IsochroneRecord{
		TrackID:       t.ID,
		MissionID:     t.MissionID,
		ComputedAt:    cache.ComputedAt,
		BudgetSeconds: req.ElapsedSeconds,
		Polygon:       cache.Polygon,
		ProviderMeta:  raw,
	}); err != nil {
		s.logger.Error("failed to append history", "track", t.ID, "error", err)
	}

	if s.recorder != nil {
		s.recorder.RecordComputation(ctx, core.Computation{
			TrackID:        t.ID,
			MissionID:      t.MissionID,
			Strategy:       strategy,
			Provider:       res.Meta.Provider,
			Fallback:       res.Meta.Fallback,
			Reason:         res.Meta.Reason,
			Features:       len(res.Features),
			ElapsedSeconds: req.ElapsedSeconds,
			Duration:       d,
			At:             cache.ComputedAt,
		})
	}

	s.logger.Debug("track recomputed",
		"track", t.ID, "strategy", strategy, "provider", res.Meta.Provider,
		"elapsed", req.ElapsedSeconds, "features", len(res.Features), "duration", d.String())
}

func (s *Scheduler) emit(ctx context.Context, typ string, t core.Track, status core.Status, cache *core.TrackCache) {
	e := streaming.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TrackID:   t.ID,
		MissionID: t.MissionID,
		Status:    status,
		Cache:     cache,
		Time:      s.clock(),
	}
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.logger.Error("failed to notify subscribers", "type", typ, "track", t.ID, "mission", t.MissionID, "error", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
