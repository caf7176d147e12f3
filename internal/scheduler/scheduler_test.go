package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuit-ops/isochroned/internal/logging"
	"github.com/pursuit-ops/isochroned/internal/storage/memory"
	"github.com/pursuit-ops/isochroned/internal/strategy/tiles"
	"github.com/pursuit-ops/isochroned/internal/traffic"
	"github.com/pursuit-ops/isochroned/pkg/core"
	"github.com/pursuit-ops/isochroned/pkg/streaming"
)

var boot = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []streaming.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e streaming.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) ofType(typ string) []streaming.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []streaming.Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Warn(msg string, kv ...any)  { l.log("WARN", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

type recorder struct {
	got []core.Computation
}

func (r *recorder) RecordComputation(_ context.Context, c core.Computation) {
	r.got = append(r.got, c)
}

type harness struct {
	s        *Scheduler
	store    *memory.Backend
	notifier *recordingNotifier
	clock    *testClock
	logger   *testLogger
	recorder *recorder
}

func newHarness(t *testing.T, runners map[core.Strategy]Runner) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		notifier: &recordingNotifier{},
		clock:    &testClock{now: boot},
		logger:   &testLogger{},
		recorder: &recorder{},
	}
	s, err := New(Config{Interval: time.Second}, Dependencies{
		Store:    h.store,
		Notifier: h.notifier,
		Runners:  runners,
		Recorder: h.recorder,
		Logger:   h.logger,
		Clock:    h.clock.Now,
	})
	require.NoError(t, err)
	h.s = s
	return h
}

func (h *harness) track(t *testing.T, mission uint, startedAt time.Time, mutate ...func(*core.Track)) *core.Track {
	t.Helper()
	tr := &core.Track{
		MissionID:                mission,
		Origin:                   core.Origin{LngLat: core.LngLat{Lng: 13.405, Lat: 52.52}},
		Profile:                  core.ProfileCar,
		Strategy:                 core.StrategyCircle,
		StartedAt:                startedAt,
		MaxDurationSeconds:       3600,
		RecomputeIntervalSeconds: 20,
		Status:                   core.StatusActive,
	}
	for _, m := range mutate {
		m(tr)
	}
	require.NoError(t, h.store.CreateTrack(context.Background(), tr))
	return tr
}

func (h *harness) get(t *testing.T, id uint) *core.Track {
	t.Helper()
	tr, err := h.store.GetTrack(context.Background(), id)
	require.NoError(t, err)
	return tr
}

func failingRunner(err error) Runner {
	return func(context.Context, core.Request, StrategyState) (core.Result, StrategyState, error) {
		return core.Result{}, StrategyState{}, err
	}
}

func TestTick_StopsOlderActiveTrackOfMission(t *testing.T) {
	h := newHarness(t, nil)
	prior := &core.TrackCache{ElapsedSeconds: 10, Polygon: json.RawMessage(`{}`)}
	a := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Cache = prior })
	b := h.track(t, 1, boot.Add(2*time.Second), func(tr *core.Track) { tr.RecomputeIntervalSeconds = 600 })

	h.clock.Set(boot.Add(10 * time.Second))
	require.True(t, h.s.Tick(context.Background()))

	gotA := h.get(t, a.ID)
	assert.Equal(t, core.StatusStopped, gotA.Status)
	assert.Nil(t, gotA.Cache)

	gotB := h.get(t, b.ID)
	assert.Equal(t, core.StatusActive, gotB.Status)
	assert.Nil(t, gotB.Cache)

	stopped := h.notifier.ofType(streaming.TypeTrackStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, a.ID, stopped[0].TrackID)
	assert.Equal(t, uint(1), stopped[0].MissionID)
	assert.NotEmpty(t, stopped[0].ID)
	assert.Len(t, h.notifier.events, 1)
}

func TestTick_SameStartKeepsHigherID(t *testing.T) {
	h := newHarness(t, nil)
	start := boot.Add(time.Second)
	a := h.track(t, 1, start)
	b := h.track(t, 1, start)

	h.clock.Set(boot.Add(5 * time.Second))
	h.s.Tick(context.Background())

	assert.Equal(t, core.StatusStopped, h.get(t, a.ID).Status)
	assert.Equal(t, core.StatusActive, h.get(t, b.ID).Status)
}

func TestTick_ExpiresTrackPastMaxDuration(t *testing.T) {
	h := newHarness(t, nil)
	prior := &core.TrackCache{ElapsedSeconds: 40, Polygon: json.RawMessage(`{"type":"FeatureCollection","features":[]}`)}
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) {
		tr.MaxDurationSeconds = 60
		tr.Cache = prior
	})

	h.clock.Set(tr.StartedAt.Add(61 * time.Second))
	h.s.Tick(context.Background())

	got := h.get(t, tr.ID)
	assert.Equal(t, core.StatusExpired, got.Status)
	require.NotNil(t, got.Cache)
	assert.Equal(t, 40.0, got.Cache.ElapsedSeconds)

	expired := h.notifier.ofType(streaming.TypeTrackExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, core.StatusExpired, expired[0].Status)
	assert.Empty(t, h.notifier.ofType(streaming.TypeTrackRecomputed))

	// already expired tracks are no longer listed
	h.s.Tick(context.Background())
	assert.Len(t, h.notifier.ofType(streaming.TypeTrackExpired), 1)
}

func TestTick_AbsoluteCeilingCapsMaxDuration(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.MaxDurationSeconds = 0 })

	h.clock.Set(tr.StartedAt.Add(DefaultAbsoluteMaxDuration))
	h.s.Tick(context.Background())

	assert.Equal(t, core.StatusExpired, h.get(t, tr.ID).Status)
}

func TestTick_CadenceGate(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.RecomputeIntervalSeconds = 60 })
	ctx := context.Background()

	h.clock.Set(tr.StartedAt.Add(30 * time.Second))
	h.s.Tick(ctx)
	assert.Nil(t, h.get(t, tr.ID).Cache, "first compute is gated from start")

	first := tr.StartedAt.Add(61 * time.Second)
	h.clock.Set(first)
	h.s.Tick(ctx)
	got := h.get(t, tr.ID)
	require.NotNil(t, got.Cache)
	assert.True(t, got.LastComputedAt.Equal(first))
	assert.InDelta(t, 61, got.Cache.ElapsedSeconds, 1e-9)

	h.clock.Set(first.Add(30 * time.Second))
	h.s.Tick(ctx)
	assert.True(t, h.get(t, tr.ID).LastComputedAt.Equal(first))

	h.clock.Set(first.Add(60 * time.Second))
	h.s.Tick(ctx)
	assert.True(t, h.get(t, tr.ID).LastComputedAt.Equal(first.Add(60*time.Second)))
	assert.Len(t, h.notifier.ofType(streaming.TypeTrackRecomputed), 2)
}

func TestTick_PersistsHistoryAndNotifies(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 3, boot.Add(time.Second))

	h.clock.Set(tr.StartedAt.Add(120 * time.Second))
	h.s.Tick(context.Background())

	got := h.get(t, tr.ID)
	require.NotNil(t, got.Cache)
	assert.Equal(t, core.StrategyCircle, got.Cache.Meta.Provider)
	assert.Contains(t, string(got.Cache.Polygon), "FeatureCollection")

	history, err := h.store.ListHistory(context.Background(), tr.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint(3), history[0].MissionID)
	assert.InDelta(t, 120, history[0].BudgetSeconds, 1e-9)
	assert.Contains(t, string(history[0].ProviderMeta), `"provider":"circle"`)

	events := h.notifier.ofType(streaming.TypeTrackRecomputed)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Cache)
	assert.Equal(t, got.Cache.ElapsedSeconds, events[0].Cache.ElapsedSeconds)

	require.Len(t, h.recorder.got, 1)
	assert.Equal(t, core.StrategyCircle, h.recorder.got[0].Provider)
	assert.Equal(t, 1, h.recorder.got[0].Features)
}

func TestTick_StrategyErrorFallsBackToCircle(t *testing.T) {
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyReachableRange: failingRunner(fmt.Errorf("range: %w", core.ErrUpstreamUnavailable)),
	})
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyReachableRange })

	h.clock.Set(tr.StartedAt.Add(60 * time.Second))
	h.s.Tick(context.Background())

	got := h.get(t, tr.ID)
	require.NotNil(t, got.Cache)
	assert.Equal(t, core.StrategyCircle, got.Cache.Meta.Provider)
	assert.True(t, got.Cache.Meta.Fallback)
	assert.Equal(t, core.StrategyReachableRange, got.Cache.Meta.FallbackFrom)
	assert.Equal(t, core.ReasonUpstreamUnavailable, got.Cache.Meta.Reason)
	assert.Len(t, h.notifier.ofType(streaming.TypeTrackRecomputed), 1)
}

func TestTick_EmptyResultWithReasonFallsBack(t *testing.T) {
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyReachableRange: func(context.Context, core.Request, StrategyState) (core.Result, StrategyState, error) {
			return core.EmptyResult(core.StrategyReachableRange, core.ReasonMissingConfig), StrategyState{}, nil
		},
	})
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyReachableRange })

	h.clock.Set(tr.StartedAt.Add(60 * time.Second))
	h.s.Tick(context.Background())

	got := h.get(t, tr.ID)
	require.NotNil(t, got.Cache)
	assert.True(t, got.Cache.Meta.Fallback)
	assert.Equal(t, core.ReasonMissingConfig, got.Cache.Meta.Reason)
}

func TestTick_PanicIsIsolatedPerTrack(t *testing.T) {
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyTiles: func(context.Context, core.Request, StrategyState) (core.Result, StrategyState, error) {
			panic("corrupt state")
		},
	})
	bad := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyTiles })
	good := h.track(t, 2, boot.Add(time.Second))

	h.clock.Set(boot.Add(time.Minute))
	require.True(t, h.s.Tick(context.Background()))

	gotBad := h.get(t, bad.ID)
	require.NotNil(t, gotBad.Cache)
	assert.True(t, gotBad.Cache.Meta.Fallback)
	assert.Equal(t, core.ReasonStrategyFailed, gotBad.Cache.Meta.Reason)

	gotGood := h.get(t, good.ID)
	require.NotNil(t, gotGood.Cache)
	assert.False(t, gotGood.Cache.Meta.Fallback)
}

func TestTick_UnknownStrategyUsesCircle(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = "teleport" })

	h.clock.Set(boot.Add(time.Minute))
	h.s.Tick(context.Background())

	got := h.get(t, tr.ID)
	require.NotNil(t, got.Cache)
	assert.Equal(t, core.StrategyCircle, got.Cache.Meta.Provider)
	assert.False(t, got.Cache.Meta.Fallback)
}

func TestTick_RoundTripsStrategyState(t *testing.T) {
	p := tiles.New(nil, nil)
	var seen []int
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyTiles: func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
			seen = append(seen, prev.Tiles.Len())
			return TilesRunner(p)(ctx, req, prev)
		},
	})
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyTiles })
	ctx := context.Background()

	h.clock.Set(tr.StartedAt.Add(200 * time.Second))
	h.s.Tick(ctx)
	h.clock.Set(tr.StartedAt.Add(400 * time.Second))
	h.s.Tick(ctx)

	require.Len(t, seen, 2)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 25, seen[1])

	got := h.get(t, tr.ID)
	state := DecodeState(got.Cache.State, core.StrategyTiles)
	require.NotNil(t, state.Tiles)
	assert.Greater(t, state.Tiles.Len(), 25)
}

func TestTick_FallbackKeepsPreviousState(t *testing.T) {
	calls := 0
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyTiles: func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
			calls++
			if calls == 2 {
				return core.Result{}, StrategyState{}, errors.New("boom")
			}
			return TilesRunner(tiles.New(nil, nil))(ctx, req, prev)
		},
	})
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyTiles })
	ctx := context.Background()

	h.clock.Set(tr.StartedAt.Add(200 * time.Second))
	h.s.Tick(ctx)
	h.clock.Set(tr.StartedAt.Add(400 * time.Second))
	h.s.Tick(ctx)

	got := h.get(t, tr.ID)
	assert.True(t, got.Cache.Meta.Fallback)
	state := DecodeState(got.Cache.State, core.StrategyTiles)
	assert.Equal(t, 25, state.Tiles.Len())
}

func TestTick_SkipsTracksStartedBeforeBoot(t *testing.T) {
	h := newHarness(t, nil)
	stale := h.track(t, 1, boot.Add(-time.Hour))

	h.clock.Set(boot.Add(time.Minute))
	h.s.Tick(context.Background())

	got := h.get(t, stale.ID)
	assert.Equal(t, core.StatusActive, got.Status)
	assert.Nil(t, got.Cache)
}

func TestRepairStale(t *testing.T) {
	h := newHarness(t, nil)
	stale := h.track(t, 1, boot.Add(-time.Hour))
	current := h.track(t, 2, boot.Add(time.Second))

	n, err := h.s.RepairStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, core.StatusStopped, h.get(t, stale.ID).Status)
	assert.Equal(t, core.StatusActive, h.get(t, current.ID).Status)
}

func TestTick_ImmediateFirstCompute(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) {
		tr.ImmediateFirstCompute = true
		tr.RecomputeIntervalSeconds = 600
	})

	h.clock.Set(tr.StartedAt.Add(5 * time.Second))
	h.s.Tick(context.Background())

	got := h.get(t, tr.ID)
	require.NotNil(t, got.Cache)
	assert.InDelta(t, 5, got.Cache.ElapsedSeconds, 1e-9)

	// subsequent computations follow the cadence again
	h.clock.Set(tr.StartedAt.Add(30 * time.Second))
	h.s.Tick(context.Background())
	assert.Len(t, h.notifier.ofType(streaming.TypeTrackRecomputed), 1)
}

func TestComputeNow(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.ImmediateFirstCompute = true })
	plain := h.track(t, 2, boot.Add(time.Second))
	ctx := context.Background()

	h.clock.Set(tr.StartedAt.Add(3 * time.Second))
	cache, err := h.s.ComputeNow(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.InDelta(t, 3, cache.ElapsedSeconds, 1e-9)

	_, err = h.s.ComputeNow(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrNotImmediate)

	_, err = h.s.ComputeNow(ctx, plain.ID)
	assert.ErrorIs(t, err, ErrNotImmediate)

	_, err = h.s.ComputeNow(ctx, 999)
	assert.Error(t, err)
}

func TestComputeNow_ZeroElapsedIsNotAFailure(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.ImmediateFirstCompute = true })

	h.clock.Set(tr.StartedAt)
	cache, err := h.s.ComputeNow(context.Background(), tr.ID)

	require.NoError(t, err)
	assert.Equal(t, core.ReasonZeroElapsed, cache.Meta.Reason)
	assert.False(t, cache.Meta.Fallback)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(cache.Polygon))
}

func TestComputeNow_NotActive(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) {
		tr.ImmediateFirstCompute = true
		tr.Status = core.StatusStopped
	})

	_, err := h.s.ComputeNow(context.Background(), tr.ID)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestComputeNow_ExpiredTrackIsExpired(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) {
		tr.ImmediateFirstCompute = true
		tr.MaxDurationSeconds = 60
	})

	h.clock.Set(tr.StartedAt.Add(2 * time.Minute))
	_, err := h.s.ComputeNow(context.Background(), tr.ID)

	assert.ErrorIs(t, err, ErrNotActive)
	got := h.get(t, tr.ID)
	assert.Equal(t, core.StatusExpired, got.Status)
	assert.Nil(t, got.Cache)
	assert.Len(t, h.notifier.ofType(streaming.TypeTrackExpired), 1)
	assert.Empty(t, h.notifier.ofType(streaming.TypeTrackRecomputed))
}

func TestComputeNow_SupersededTrackIsStopped(t *testing.T) {
	h := newHarness(t, nil)
	older := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.ImmediateFirstCompute = true })
	newer := h.track(t, 1, boot.Add(2*time.Second))

	h.clock.Set(boot.Add(10 * time.Second))
	_, err := h.s.ComputeNow(context.Background(), older.ID)

	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, core.StatusStopped, h.get(t, older.ID).Status)
	assert.Nil(t, h.get(t, older.ID).Cache)
	assert.Equal(t, core.StatusActive, h.get(t, newer.ID).Status)
	assert.Empty(t, h.notifier.ofType(streaming.TypeTrackRecomputed))
}

func TestTick_TrackStoppedDuringComputationIsNotAnError(t *testing.T) {
	var h *harness
	h = newHarness(t, map[core.Strategy]Runner{
		core.StrategyTiles: func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
			stopped := core.StatusStopped
			_, err := h.store.UpdateTrackIfStatus(ctx, req.TrackID, core.StatusActive, core.TrackUpdate{Status: &stopped})
			require.NoError(t, err)
			return CircleRunner(ctx, req, prev)
		},
	})
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyTiles })

	h.clock.Set(tr.StartedAt.Add(time.Minute))
	require.True(t, h.s.Tick(context.Background()))

	got := h.get(t, tr.ID)
	assert.Equal(t, core.StatusStopped, got.Status)
	assert.Nil(t, got.Cache)

	h.logger.mu.Lock()
	defer h.logger.mu.Unlock()
	logs := fmt.Sprint(h.logger.messages)
	assert.NotContains(t, logs, "ERROR")
	assert.Contains(t, logs, "DEBUG: track left active state during computation")
}

func TestTick_RunnerContextCarriesTrack(t *testing.T) {
	var attrs []slog.Attr
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyTiles: func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
			attrs = logging.AttrsFromContext(ctx)
			return CircleRunner(ctx, req, prev)
		},
	})
	tr := h.track(t, 42, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyTiles })

	h.clock.Set(tr.StartedAt.Add(time.Minute))
	h.s.Tick(context.Background())

	require.Len(t, attrs, 2)
	assert.Equal(t, "track", attrs[0].Key)
	assert.Equal(t, uint64(tr.ID), attrs[0].Value.Uint64())
	assert.Equal(t, "mission", attrs[1].Key)
	assert.Equal(t, uint64(42), attrs[1].Value.Uint64())
}

func TestTick_LogsTrafficUsage(t *testing.T) {
	h := newHarness(t, nil)
	logger := &testLogger{}
	s, err := New(Config{}, Dependencies{
		Store:   h.store,
		Traffic: traffic.NewCache(nil, traffic.NewBudget(8), time.Minute, nil),
		Logger:  logger,
		Clock:   h.clock.Now,
	})
	require.NoError(t, err)
	h.track(t, 1, boot.Add(time.Second))

	h.clock.Set(boot.Add(time.Minute))
	require.True(t, s.Tick(context.Background()))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, fmt.Sprint(logger.messages), "DEBUG: tick finished [tracks 1 trafficSamples 0 trafficLookupsLeft 8]")
}

func TestTick_DroppedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	h := newHarness(t, map[core.Strategy]Runner{
		core.StrategyTiles: func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
			close(entered)
			<-release
			return CircleRunner(ctx, req, prev)
		},
	})
	tr := h.track(t, 1, boot.Add(time.Second), func(tr *core.Track) { tr.Strategy = core.StrategyTiles })
	h.clock.Set(tr.StartedAt.Add(time.Minute))

	done := make(chan bool)
	go func() { done <- h.s.Tick(context.Background()) }()
	<-entered

	assert.False(t, h.s.Tick(context.Background()))
	_, err := h.s.ComputeNow(context.Background(), tr.ID)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	assert.True(t, <-done)
	assert.True(t, h.s.Tick(context.Background()), "guard is released after the tick")

	h.logger.mu.Lock()
	defer h.logger.mu.Unlock()
	assert.Contains(t, fmt.Sprint(h.logger.messages), "WARN: tick dropped")
}

// vanishingStore deletes a track right after listing it, as a concurrent
// mission deletion would.
type vanishingStore struct {
	*memory.Backend
	victim uint
}

func (v *vanishingStore) ListActiveTracks(ctx context.Context, after time.Time) ([]core.Track, error) {
	tracks, err := v.Backend.ListActiveTracks(ctx, after)
	v.Backend.DeleteTrack(v.victim)
	return tracks, err
}

func TestTick_TrackDeletedMidTickIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	gone := h.track(t, 1, boot.Add(time.Second))
	kept := h.track(t, 2, boot.Add(time.Second))

	s, err := New(Config{}, Dependencies{
		Store:    &vanishingStore{Backend: h.store, victim: gone.ID},
		Notifier: h.notifier,
		Clock:    h.clock.Now,
	})
	require.NoError(t, err)

	h.clock.Set(boot.Add(time.Minute))
	assert.True(t, s.Tick(context.Background()))

	events := h.notifier.ofType(streaming.TypeTrackRecomputed)
	require.Len(t, events, 1)
	assert.Equal(t, kept.ID, events[0].TrackID)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error)
	go func() { errCh <- h.s.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
