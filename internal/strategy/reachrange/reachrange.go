// Package reachrange delegates isochrone computation to an external
// reachable-range service, negotiating a travel mode the service accepts
// for the vehicle profile.
package reachrange

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/pursuit-ops/isochroned/internal/cache"
	"github.com/pursuit-ops/isochroned/internal/geo"
	provider "github.com/pursuit-ops/isochroned/internal/provider/reachrange"
	"github.com/pursuit-ops/isochroned/internal/strategy/circle"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

const (
	// DefaultMaxBudgetSeconds caps the budget sent upstream.
	DefaultMaxBudgetSeconds = 3600
	// WarningTravelModeFallback marks results computed with a non-primary mode.
	WarningTravelModeFallback = "TRAVEL_MODE_FALLBACK"
)

// Ranger is the reachable-range provider.
type Ranger interface {
	ReachableRange(ctx context.Context, origin core.LngLat, budgetSeconds int, traffic bool, travelMode string) (provider.Range, error)
}

// Provider travel modes and the cruising speed each one assumes.
var modeSpeeds = map[string]float64{
	"car":        60,
	"truck":      50,
	"van":        55,
	"motorcycle": 70,
	"bicycle":    18,
	"pedestrian": 5,
}

// Candidates returns the travel modes to try for a profile, best first.
func Candidates(p core.VehicleProfile) []string {
	switch p {
	case core.ProfileCar:
		return []string{"car"}
	case core.ProfileTruck:
		return []string{"truck", "car"}
	case core.ProfileVan:
		return []string{"van", "car"}
	case core.ProfileMotorcycle, core.ProfileScooter:
		return []string{"motorcycle", "car"}
	case core.ProfileBicycle:
		return []string{"bicycle", "car"}
	case core.ProfilePedestrian:
		return []string{"pedestrian", "car"}
	default:
		return []string{"car"}
	}
}

// BudgetScale shrinks the budget when a slower profile is sent upstream as
// a faster travel mode.
func BudgetScale(p core.VehicleProfile, mode string) float64 {
	if string(p) == mode {
		return 1
	}
	modeSpeed, ok := modeSpeeds[mode]
	if !ok || modeSpeed <= 0 {
		return 1
	}
	return math.Min(1, circle.SpeedKmh(p)/modeSpeed)
}

// Config controls the adapter.
type Config struct {
	MaxBudgetSeconds int
	Traffic          bool
}

// Adapter computes isochrones through a Ranger.
type Adapter struct {
	ranger Ranger
	memo   *cache.ModeMemo
	cfg    Config
	logger *slog.Logger
}

// New creates an Adapter. memo is shared across calls and should live as
// long as the process.
func New(ranger Ranger, memo *cache.ModeMemo, cfg Config, logger *slog.Logger) *Adapter {
	if memo == nil {
		memo = cache.NewModeMemo()
	}
	if cfg.MaxBudgetSeconds <= 0 {
		cfg.MaxBudgetSeconds = DefaultMaxBudgetSeconds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{ranger: ranger, memo: memo, cfg: cfg, logger: logger}
}

// Compute returns the reachable-range polygon for req. It never returns an
// error; failures yield an empty result with a reason code.
func (a *Adapter) Compute(ctx context.Context, req core.Request) core.Result {
	if !req.Origin.Valid() {
		return core.EmptyResult(core.StrategyReachableRange, core.ReasonMissingInput)
	}
	if req.ElapsedSeconds <= 0 {
		return core.EmptyResult(core.StrategyReachableRange, core.ReasonZeroElapsed)
	}

	budget := math.Max(1, math.Min(req.ElapsedSeconds, float64(a.cfg.MaxBudgetSeconds)))
	candidates := Candidates(req.Profile)
	primary := candidates[0]

	var lastErr error
	for _, mode := range candidates {
		if a.memo.Unsupported(req.Profile, mode) {
			continue
		}

		scaled := int(math.Max(1, math.Round(budget*BudgetScale(req.Profile, mode))))
		rng, err := a.ranger.ReachableRange(ctx, req.Origin, scaled, a.cfg.Traffic, mode)
		if err != nil {
			lastErr = err
			switch {
			case errors.Is(err, core.ErrProviderDisabled), errors.Is(err, core.ErrMissingConfig):
				return core.EmptyResult(core.StrategyReachableRange, core.ReasonFor(err))
			case errors.Is(err, core.ErrUpstreamRejected):
				a.memo.MarkUnsupported(req.Profile, mode)
				a.logger.InfoContext(ctx, "travel mode rejected",
					"profile", req.Profile, "mode", mode, "rejected", a.memo.Modes(req.Profile), "error", err)
			default:
				a.logger.WarnContext(ctx, "reachable range failed", "profile", req.Profile, "mode", mode, "error", err)
			}
			continue
		}

		g, err := geo.PolygonGeometry(rng.Boundary)
		if err != nil {
			a.logger.WarnContext(ctx, "reachable range boundary rejected", "profile", req.Profile, "mode", mode, "error", err)
			return core.EmptyResult(core.StrategyReachableRange, core.ReasonEmptyResult)
		}

		res := core.Result{
			Features: []core.Feature{{
				Geometry: g,
				Properties: map[string]any{
					"travelMode":    mode,
					"budgetSeconds": scaled,
				},
			}},
			Meta: core.Meta{
				Provider:       core.StrategyReachableRange,
				Profile:        req.Profile,
				ElapsedSeconds: req.ElapsedSeconds,
				BudgetSeconds:  float64(scaled),
				TravelMode:     mode,
				RequestedMode:  primary,
				Raw:            rng.Raw,
			},
		}
		if mode != primary {
			res.Meta.Warnings = append(res.Meta.Warnings, WarningTravelModeFallback)
		}
		return res
	}

	if lastErr == nil {
		// every candidate was memoized as unsupported
		return core.EmptyResult(core.StrategyReachableRange, core.ReasonUpstreamRejected)
	}
	return core.EmptyResult(core.StrategyReachableRange, core.ReasonFor(lastErr))
}
