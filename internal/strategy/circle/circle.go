// Package circle estimates reachable range as a great-circle disk whose
// radius is the nominal cruising speed of the vehicle times elapsed time.
package circle

import (
	"math"

	"github.com/pursuit-ops/isochroned/internal/geo"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

const (
	// MaxElapsedSeconds caps the time used for the radius.
	MaxElapsedSeconds = 3600
	// Samples is the number of bearings around the origin.
	Samples = 64
	// DefaultSpeedKmh applies to profiles without a nominal speed.
	DefaultSpeedKmh = 50.0
)

// nominal cruising speeds in km/h
var speeds = map[core.VehicleProfile]float64{
	core.ProfileCar:        60,
	core.ProfileTruck:      50,
	core.ProfileVan:        55,
	core.ProfileMotorcycle: 70,
	core.ProfileScooter:    40,
	core.ProfileBicycle:    18,
	core.ProfilePedestrian: 5,
}

// SpeedKmh returns the nominal cruising speed of a profile.
func SpeedKmh(p core.VehicleProfile) float64 {
	if s, ok := speeds[p]; ok {
		return s
	}
	return DefaultSpeedKmh
}

// RadiusMeters returns the disk radius for a profile after elapsed seconds.
// Elapsed time is clamped to [0, MaxElapsedSeconds].
func RadiusMeters(p core.VehicleProfile, elapsedSeconds float64) float64 {
	elapsed := math.Max(0, math.Min(elapsedSeconds, MaxElapsedSeconds))
	return SpeedKmh(p) * 1000 * elapsed / 3600
}

// Estimate returns the disk polygon for the request. It never fails: a
// non-positive elapsed time or a missing origin yields an empty result with
// a reason code.
func Estimate(req core.Request) core.Result {
	if !req.Origin.Valid() {
		return core.EmptyResult(core.StrategyCircle, core.ReasonMissingInput)
	}
	if req.ElapsedSeconds <= 0 {
		return core.EmptyResult(core.StrategyCircle, core.ReasonZeroElapsed)
	}

	speed := SpeedKmh(req.Profile)
	radius := RadiusMeters(req.Profile, req.ElapsedSeconds)

	ring := make([]core.LngLat, 0, Samples+1)
	for i := 0; i < Samples; i++ {
		bearing := 360 * float64(i) / Samples
		ring = append(ring, geo.Destination(req.Origin, bearing, radius))
	}
	g, err := geo.PolygonGeometry(ring)
	if err != nil {
		return core.EmptyResult(core.StrategyCircle, core.ReasonStrategyFailed)
	}

	return core.Result{
		Features: []core.Feature{{
			Geometry: g,
			Properties: map[string]any{
				"radiusMeters": radius,
				"speedKmh":     speed,
			},
		}},
		Meta: core.Meta{
			Provider:       core.StrategyCircle,
			Profile:        req.Profile,
			ElapsedSeconds: math.Min(req.ElapsedSeconds, MaxElapsedSeconds),
			RadiusMeters:   radius,
			SpeedKmh:       speed,
		},
	}
}

// Fallback runs Estimate and tags the result as a substitute for the
// strategy that could not produce output.
func Fallback(req core.Request, from core.Strategy, reason string) core.Result {
	res := Estimate(req)
	if res.Empty() {
		return res
	}
	res.Meta.Fallback = true
	res.Meta.FallbackFrom = from
	res.Meta.Reason = reason
	return res
}
