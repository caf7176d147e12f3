package roadgraph

import (
	"math"

	provider "github.com/pursuit-ops/isochroned/internal/provider/roadgraph"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// MinSpeedKmh is the floor applied to every edge.
const MinSpeedKmh = 3.0

// Lane-splitting caps for two-wheeled profiles in congestion.
const (
	LaneSplitHighwayKmh = 60.0
	LaneSplitSurfaceKmh = 35.0
)

type speedProfile struct {
	base      float64
	overspeed float64
	max       float64
}

var profileSpeeds = map[core.VehicleProfile]speedProfile{
	core.ProfileCar:        {base: 130, overspeed: 1.10, max: 180},
	core.ProfileTruck:      {base: 90, overspeed: 1.00, max: 110},
	core.ProfileVan:        {base: 110, overspeed: 1.05, max: 150},
	core.ProfileMotorcycle: {base: 130, overspeed: 1.15, max: 200},
	core.ProfileScooter:    {base: 45, overspeed: 1.00, max: 60},
	core.ProfileBicycle:    {base: 20, overspeed: 1.00, max: 35},
	core.ProfilePedestrian: {base: 5, overspeed: 1.00, max: 8},
}

var defaultProfile = profileSpeeds[core.ProfileCar]

var classSpeeds = map[string]float64{
	provider.ClassMotorway:    120,
	provider.ClassTrunk:       100,
	provider.ClassPrimary:     70,
	provider.ClassSecondary:   60,
	provider.ClassTertiary:    50,
	provider.ClassResidential: 30,
	provider.ClassService:     20,
}

const defaultClassSpeed = 40.0

func speedsFor(p core.VehicleProfile) speedProfile {
	if s, ok := profileSpeeds[p]; ok {
		return s
	}
	return defaultProfile
}

// Allowed reports whether the profile may use the edge.
func Allowed(p core.VehicleProfile, e provider.Edge) bool {
	if e.RoadClass != provider.ClassMotorway {
		return true
	}
	return p != core.ProfilePedestrian && p != core.ProfileBicycle
}

// EffectiveSpeedKmh returns the travel speed of profile on edge given an
// optional traffic sample (sampleKmh <= 0 means no sample).
func EffectiveSpeedKmh(p core.VehicleProfile, e provider.Edge, sampleKmh float64) float64 {
	sp := speedsFor(p)

	limit := e.SpeedLimit
	if limit <= 0 {
		limit = defaultClassSpeed
		if s, ok := classSpeeds[e.RoadClass]; ok {
			limit = s
		}
	}
	speed := math.Min(sp.base, limit) * sp.overspeed

	if sampleKmh > 0 && sampleKmh < speed && p != core.ProfilePedestrian {
		if p.TwoWheeled() {
			laneSplit := LaneSplitSurfaceKmh
			if e.Highway() {
				laneSplit = LaneSplitHighwayKmh
			}
			speed = math.Min(speed, math.Max(sampleKmh, laneSplit))
		} else {
			speed = sampleKmh
		}
	}

	return math.Max(MinSpeedKmh, math.Min(speed, sp.max))
}
