// Package tiles grows a frontier of map tiles around the origin. Each tile
// fills over a traversal time derived from live traffic, and a tile that
// becomes full spawns the rings of tiles around it.
package tiles

import (
	"context"
	"log/slog"
	"math"

	"github.com/pursuit-ops/isochroned/internal/geo"
	"github.com/pursuit-ops/isochroned/internal/traffic"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

const (
	Zoom            = 14
	BaseTileSeconds = 180.0
	BaseSpeedKmh    = 50.0
	MinSpeedFactor  = 0.2
	MaxSpeedFactor  = 3.0
	DefaultMaxTiles = 4096

	// DefaultLookupsPerCall caps the traffic lookups of a single call.
	DefaultLookupsPerCall = 32
)

// RingsFor returns how many Chebyshev rings a full tile spawns at the given
// effective speed.
func RingsFor(speedKmh float64) int {
	switch {
	case speedKmh < 25:
		return 1
	case speedKmh < 70:
		return 2
	default:
		return 3
	}
}

// TraversalSeconds converts a measured speed into a tile traversal time.
func TraversalSeconds(speedKmh float64) float64 {
	factor := speedKmh / BaseSpeedKmh
	factor = math.Max(MinSpeedFactor, math.Min(MaxSpeedFactor, factor))
	return BaseTileSeconds / factor
}

// Propagator advances tile frontiers.
type Propagator struct {
	cache    *traffic.Cache
	budget   *traffic.Budget
	maxTiles int
	lookups  int
	logger   *slog.Logger
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithMaxTiles bounds the number of tiles a frontier may hold.
func WithMaxTiles(n int) Option {
	return func(p *Propagator) {
		if n > 0 {
			p.maxTiles = n
		}
	}
}

// WithLookupsPerCall bounds the traffic lookups made by one Propagate call.
func WithLookupsPerCall(n int) Option {
	return func(p *Propagator) {
		if n > 0 {
			p.lookups = n
		}
	}
}

// New creates a Propagator reading speeds from cache. Its lookups are
// drawn from the cache budget through a per-call allowance.
func New(cache *traffic.Cache, logger *slog.Logger, opts ...Option) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = traffic.NewCache(nil, nil, 0, logger)
	}
	p := &Propagator{maxTiles: DefaultMaxTiles, lookups: DefaultLookupsPerCall, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	p.budget = cache.Budget().Child(p.lookups)
	p.cache = cache.WithBudget(p.budget)
	return p
}

// Propagate advances state to req.ElapsedSeconds and returns one box feature
// per tile with non-zero coverage. A nil state is seeded with the tile under
// the origin. The returned state replaces the input on the next call.
func (p *Propagator) Propagate(ctx context.Context, req core.Request, state *State) (core.Result, *State) {
	if !req.Origin.Valid() {
		return core.EmptyResult(core.StrategyTiles, core.ReasonMissingInput), state
	}
	if state == nil || len(state.Tiles) == 0 {
		state = NewState(geo.TileAt(req.Origin, Zoom))
	}
	if req.ElapsedSeconds <= 0 {
		return core.EmptyResult(core.StrategyTiles, core.ReasonZeroElapsed), state
	}

	p.budget.Reset()

	queue := state.keys()
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]

		ts := state.Tiles[key]
		if ts.Status == StatusFull {
			continue
		}
		// tiles the budget cannot reach yet keep their traversal unresolved
		if req.ElapsedSeconds <= ts.BestArrivalSeconds {
			continue
		}
		if !ts.Memoized {
			p.memoize(ctx, ts, req)
		}

		coverage := (req.ElapsedSeconds - ts.BestArrivalSeconds) / ts.TraversalSeconds
		coverage = math.Max(0, math.Min(1, coverage))
		if coverage > ts.Coverage {
			ts.Coverage = coverage
		}
		if ts.Coverage < 1 {
			ts.Status = StatusFilling
			continue
		}

		ts.Status = StatusFull
		queue = append(queue, p.spawn(state, ts)...)
	}

	return p.result(req, state), state
}

func (p *Propagator) memoize(ctx context.Context, ts *TileState, req core.Request) {
	ts.TraversalSeconds = BaseTileSeconds
	if sample, ok := p.cache.Get(ctx, ts.Tile, req.Now); ok && sample.SpeedKmh > 0 {
		ts.SpeedKmh = sample.SpeedKmh
		ts.TraversalSeconds = TraversalSeconds(sample.SpeedKmh)
	}
	ts.Memoized = true
}

// spawn adds the rings around a newly full tile and returns the keys that
// need evaluation. Existing tiles keep the earlier of both arrival times.
func (p *Propagator) spawn(state *State, parent *TileState) []string {
	var touched []string
	rings := RingsFor(parent.EffectiveSpeedKmh())
	for r := 1; r <= rings; r++ {
		arrival := parent.BestArrivalSeconds + float64(r)*parent.TraversalSeconds
		for _, t := range parent.Tile.Ring(r) {
			key := t.Key()
			if existing, ok := state.Tiles[key]; ok {
				if existing.Status != StatusFull && arrival < existing.BestArrivalSeconds {
					existing.BestArrivalSeconds = arrival
					touched = append(touched, key)
				}
				continue
			}
			if len(state.Tiles) >= p.maxTiles {
				p.logger.Debug("tile frontier at capacity", "tiles", len(state.Tiles))
				return touched
			}
			state.Tiles[key] = &TileState{Tile: t, Status: StatusFilling, BestArrivalSeconds: arrival}
			touched = append(touched, key)
		}
	}
	return touched
}

func (p *Propagator) result(req core.Request, state *State) core.Result {
	res := core.Result{
		Meta: core.Meta{
			Provider:       core.StrategyTiles,
			Profile:        req.Profile,
			ElapsedSeconds: req.ElapsedSeconds,
		},
	}
	for _, key := range state.keys() {
		ts := state.Tiles[key]
		if ts.Coverage <= 0 {
			continue
		}
		g, err := geo.TilePolygon(ts.Tile)
		if err != nil {
			continue
		}
		res.Features = append(res.Features, core.Feature{
			Geometry: g,
			Properties: map[string]any{
				"coverage": ts.Coverage,
				"speedKmh": ts.SpeedKmh,
				"tile":     key,
				"status":   string(ts.Status),
			},
		})
	}
	res.Meta.TileCount = len(res.Features)
	if res.Empty() {
		res.Meta.Reason = core.ReasonEmptyResult
	}
	return res
}
