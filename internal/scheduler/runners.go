package scheduler

import (
	"context"
	"encoding/json"

	"github.com/pursuit-ops/isochroned/internal/strategy/circle"
	"github.com/pursuit-ops/isochroned/internal/strategy/reachrange"
	"github.com/pursuit-ops/isochroned/internal/strategy/roadgraph"
	"github.com/pursuit-ops/isochroned/internal/strategy/tiles"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// CircleRunner runs the circle estimator. It carries no state.
func CircleRunner(_ context.Context, req core.Request, _ StrategyState) (core.Result, StrategyState, error) {
	return circle.Estimate(req), StrategyState{Kind: core.StrategyCircle}, nil
}

// TilesRunner adapts a tile propagator.
func TilesRunner(p *tiles.Propagator) Runner {
	return func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
		res, state := p.Propagate(ctx, req, prev.Tiles)
		return res, StrategyState{Kind: core.StrategyTiles, Tiles: state}, nil
	}
}

// RoadGraphRunner adapts a road-graph solver.
func RoadGraphRunner(s *roadgraph.Solver) Runner {
	return func(ctx context.Context, req core.Request, prev StrategyState) (core.Result, StrategyState, error) {
		res, state := s.Solve(ctx, req, prev.RoadGraph)
		return res, StrategyState{Kind: core.StrategyRoadGraph, RoadGraph: state}, nil
	}
}

// ReachRangeRunner adapts a reachable-range adapter. It carries no state.
func ReachRangeRunner(a *reachrange.Adapter) Runner {
	return func(ctx context.Context, req core.Request, _ StrategyState) (core.Result, StrategyState, error) {
		return a.Compute(ctx, req), StrategyState{Kind: core.StrategyReachableRange}, nil
	}
}

func jsonMeta(m core.Meta) (json.RawMessage, error) {
	return json.Marshal(m)
}
