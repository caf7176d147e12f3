// Package roadgraph estimates reachability by a shortest-time search over
// the road network around the origin.
package roadgraph

import (
	"context"
	"log/slog"
	"math"

	"github.com/pursuit-ops/isochroned/internal/geo"
	provider "github.com/pursuit-ops/isochroned/internal/provider/roadgraph"
	"github.com/pursuit-ops/isochroned/internal/strategy/circle"
	"github.com/pursuit-ops/isochroned/internal/traffic"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// Zoom is the tile zoom used for edge fetches.
const Zoom = 15

// Result tiers.
const (
	TierFull     = "full"
	TierDegraded = "degraded"
)

// Tile fetch statuses.
const (
	TileLoaded = "loaded"
	TileFailed = "failed"
)

// Graph is the road-graph provider.
type Graph interface {
	Snap(ctx context.Context, p core.LngLat, profile core.VehicleProfile) (core.LngLat, error)
	TileEdges(ctx context.Context, tile geo.Tile, profile core.VehicleProfile) ([]provider.Edge, error)
}

// SnappedOrigin is the origin used for the search.
type SnappedOrigin struct {
	LngLat  core.LngLat `json:"lngLat"`
	Tile    geo.Tile    `json:"tile"`
	Snapped bool        `json:"snapped"`
}

// TileInfo records the last fetch of one tile.
type TileInfo struct {
	Status             string  `json:"status"`
	EdgeCount          int     `json:"edgeCount"`
	Reached            bool    `json:"reached,omitempty"`
	BestArrivalSeconds float64 `json:"bestArrivalSeconds,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// State is carried between calls for one track.
type State struct {
	Origin  *SnappedOrigin       `json:"origin,omitempty"`
	Tiles   map[string]*TileInfo `json:"tiles,omitempty"`
	Samples traffic.Samples      `json:"samples,omitempty"`
}

// Solver runs the road-graph search.
type Solver struct {
	graph  Graph
	cache  *traffic.Cache
	logger *slog.Logger
}

// New creates a Solver. Per-track traffic samples are nested under cache
// and draw from its lookup budget.
func New(graph Graph, cache *traffic.Cache, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = traffic.NewCache(nil, nil, 0, logger)
	}
	return &Solver{graph: graph, cache: cache, logger: logger}
}

// Solve computes the explored road network reachable within
// req.ElapsedSeconds. It never returns an error: fetch failures degrade the
// tier and an empty network falls back to the circle estimate.
func (s *Solver) Solve(ctx context.Context, req core.Request, state *State) (core.Result, *State) {
	if !req.Origin.Valid() {
		return core.EmptyResult(core.StrategyRoadGraph, core.ReasonMissingInput), state
	}
	if state == nil {
		state = &State{}
	}
	if req.ElapsedSeconds <= 0 {
		return core.EmptyResult(core.StrategyRoadGraph, core.ReasonZeroElapsed), state
	}
	if state.Origin == nil {
		state.Origin = s.snap(ctx, req)
	}
	if state.Tiles == nil {
		state.Tiles = make(map[string]*TileInfo)
	}

	samples := s.cache.Nested(state.Samples)
	defer func() { state.Samples = samples.Snapshot() }()

	tier := TierFull
	if !state.Origin.Snapped {
		tier = TierDegraded
	}

	edges, failed := s.fetch(ctx, req, state)
	if len(failed) > 0 {
		tier = TierDegraded
	}

	if len(edges) == 0 {
		return s.fallback(req, tier, failed), state
	}

	speeds := make(map[string]float64)
	for _, te := range edges {
		if _, ok := speeds[te.tile]; ok {
			continue
		}
		speeds[te.tile] = 0
		tile, err := geo.ParseTileKey(te.tile)
		if err != nil {
			continue
		}
		if sample, ok := samples.Get(ctx, tile, req.Now); ok {
			speeds[te.tile] = sample.SpeedKmh
		}
	}

	g := buildGraph(edges, req.Profile, func(te tileEdge) float64 {
		return EffectiveSpeedKmh(req.Profile, te.edge, speeds[te.tile])
	})
	if len(g.nodes) == 0 {
		return s.fallback(req, tier, failed), state
	}

	source, meters := g.nearest(state.Origin.LngLat)
	access := meters / (circle.SpeedKmh(req.Profile) / 3.6)
	dist := g.shortestTimes(source, access, req.ElapsedSeconds)

	var lines [][]core.LngLat
	for _, info := range state.Tiles {
		info.Reached = false
		info.BestArrivalSeconds = 0
	}
	for _, e := range g.edges {
		arrival := math.Min(dist[e.from], dist[e.to])
		if math.IsInf(arrival, 1) {
			continue
		}
		lines = append(lines, e.line)
		if info, ok := state.Tiles[e.tile]; ok {
			if !info.Reached || arrival < info.BestArrivalSeconds {
				info.BestArrivalSeconds = arrival
			}
			info.Reached = true
		}
	}
	if len(lines) == 0 {
		return s.fallback(req, tier, failed), state
	}

	return core.Result{
		Features: []core.Feature{{
			Geometry: geo.MultiLineStringGeometry(lines),
			Properties: map[string]any{
				"reachedEdges": len(lines),
				"snapped":      state.Origin.Snapped,
			},
		}},
		Meta: core.Meta{
			Provider:       core.StrategyRoadGraph,
			Tier:           tier,
			Profile:        req.Profile,
			ElapsedSeconds: req.ElapsedSeconds,
			EdgeCount:      len(g.edges),
			ReachedEdges:   len(lines),
			FailedTiles:    failed,
		},
	}, state
}

func (s *Solver) snap(ctx context.Context, req core.Request) *SnappedOrigin {
	origin := &SnappedOrigin{LngLat: req.Origin}
	if s.graph != nil {
		snapped, err := s.graph.Snap(ctx, req.Origin, req.Profile)
		if err == nil {
			origin.LngLat = snapped
			origin.Snapped = true
		} else {
			s.logger.InfoContext(ctx, "origin snap failed, continuing unsnapped", "error", err)
		}
	}
	origin.Tile = geo.TileAt(origin.LngLat, Zoom)
	return origin
}

// fetch loads the 3x3 block of tiles around the origin. Failed tiles are
// recorded and returned by key.
func (s *Solver) fetch(ctx context.Context, req core.Request, state *State) ([]tileEdge, []string) {
	var (
		edges  []tileEdge
		failed []string
		seen   = make(map[string]struct{})
	)
	for _, tile := range state.Origin.Tile.Block(1) {
		key := tile.Key()
		info := &TileInfo{Status: TileLoaded}
		state.Tiles[key] = info

		if s.graph == nil {
			info.Status = TileFailed
			info.Error = core.ErrProviderDisabled.Error()
			failed = append(failed, key)
			continue
		}
		got, err := s.graph.TileEdges(ctx, tile, req.Profile)
		if err != nil {
			info.Status = TileFailed
			info.Error = err.Error()
			failed = append(failed, key)
			s.logger.DebugContext(ctx, "tile edge fetch failed", "tile", key, "error", err)
			continue
		}
		info.EdgeCount = len(got)
		for _, e := range got {
			if e.ID != "" {
				if _, dup := seen[e.ID]; dup {
					continue
				}
				seen[e.ID] = struct{}{}
			}
			edges = append(edges, tileEdge{edge: e, tile: key})
		}
	}
	return edges, failed
}

func (s *Solver) fallback(req core.Request, tier string, failed []string) core.Result {
	res := circle.Fallback(req, core.StrategyRoadGraph, core.ReasonEmptyResult)
	res.Meta.Tier = tier
	res.Meta.FailedTiles = failed
	return res
}
