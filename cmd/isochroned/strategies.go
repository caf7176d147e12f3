package main

import (
	"github.com/pursuit-ops/isochroned/internal/cache"
	"github.com/pursuit-ops/isochroned/internal/config"
	rrprovider "github.com/pursuit-ops/isochroned/internal/provider/reachrange"
	rgprovider "github.com/pursuit-ops/isochroned/internal/provider/roadgraph"
	trprovider "github.com/pursuit-ops/isochroned/internal/provider/traffic"
	"github.com/pursuit-ops/isochroned/internal/scheduler"
	"github.com/pursuit-ops/isochroned/internal/strategy/reachrange"
	"github.com/pursuit-ops/isochroned/internal/strategy/roadgraph"
	"github.com/pursuit-ops/isochroned/internal/strategy/tiles"
	"github.com/pursuit-ops/isochroned/internal/traffic"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// newStrategies builds the process-wide caches, the provider clients and
// one runner per strategy.
func newStrategies() scheduler.Dependencies {
	tc := config.GetTrafficConfig()
	trafficCache := traffic.NewCache(
		trprovider.New(trprovider.Config{
			Enabled: tc.Enabled,
			BaseURL: tc.BaseURL,
			APIKey:  tc.APIKey,
			Timeout: tc.Timeout,
		}),
		traffic.NewBudget(tc.Budget),
		tc.TTL,
		Logger.With("component", "traffic"),
	)

	tl := config.GetTilesConfig()

	rg := config.GetRoadGraphConfig()
	graph := rgprovider.New(rgprovider.Config{
		Enabled: rg.Enabled,
		BaseURL: rg.BaseURL,
		APIKey:  rg.APIKey,
		Timeout: rg.Timeout,
	})

	rr := config.GetReachRangeConfig()
	ranger := rrprovider.New(rrprovider.Config{
		Enabled: rr.Enabled,
		BaseURL: rr.BaseURL,
		APIKey:  rr.APIKey,
		Timeout: rr.Timeout,
	})

	return scheduler.Dependencies{
		Traffic: trafficCache,
		Runners: map[core.Strategy]scheduler.Runner{
			core.StrategyTiles: scheduler.TilesRunner(
				tiles.New(trafficCache, Logger.With("strategy", "tiles"),
					tiles.WithMaxTiles(tl.MaxTiles),
					tiles.WithLookupsPerCall(tl.LookupsPerCall),
				),
			),
			core.StrategyRoadGraph: scheduler.RoadGraphRunner(
				roadgraph.New(graph, trafficCache, Logger.With("strategy", "roadgraph")),
			),
			core.StrategyReachableRange: scheduler.ReachRangeRunner(
				reachrange.New(ranger, cache.NewModeMemo(), reachrange.Config{
					MaxBudgetSeconds: rr.MaxBudgetSeconds,
					Traffic:          rr.Traffic,
				}, Logger.With("strategy", "reachrange")),
			),
		},
	}
}
