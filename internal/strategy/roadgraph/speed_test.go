package roadgraph

import (
	"testing"

	provider "github.com/pursuit-ops/isochroned/internal/provider/roadgraph"
	"github.com/pursuit-ops/isochroned/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveSpeed_CappedByLimitAndOverspeed(t *testing.T) {
	e := provider.Edge{SpeedLimit: 50, RoadClass: provider.ClassPrimary}

	assert.InDelta(t, 55, EffectiveSpeedKmh(core.ProfileCar, e, 0), 1e-9)
	assert.InDelta(t, 50, EffectiveSpeedKmh(core.ProfileTruck, e, 0), 1e-9)
	// bicycles are slower than the limit
	assert.InDelta(t, 20, EffectiveSpeedKmh(core.ProfileBicycle, e, 0), 1e-9)
}

func TestEffectiveSpeed_ClassDefaultWithoutLimit(t *testing.T) {
	e := provider.Edge{RoadClass: provider.ClassResidential}
	assert.InDelta(t, 33, EffectiveSpeedKmh(core.ProfileCar, e, 0), 1e-9)

	unknown := provider.Edge{RoadClass: "track"}
	assert.InDelta(t, 44, EffectiveSpeedKmh(core.ProfileCar, unknown, 0), 1e-9)
}

func TestEffectiveSpeed_MaxPlausible(t *testing.T) {
	e := provider.Edge{SpeedLimit: 300, RoadClass: provider.ClassMotorway}
	assert.InDelta(t, 143, EffectiveSpeedKmh(core.ProfileCar, e, 0), 1e-9)
	assert.InDelta(t, 90, EffectiveSpeedKmh(core.ProfileTruck, e, 0), 1e-9)
	assert.InDelta(t, 149.5, EffectiveSpeedKmh(core.ProfileMotorcycle, e, 0), 1e-9)
}

func TestEffectiveSpeed_Congestion(t *testing.T) {
	highway := provider.Edge{SpeedLimit: 120, RoadClass: provider.ClassMotorway}
	surface := provider.Edge{SpeedLimit: 50, RoadClass: provider.ClassSecondary}

	// multi-wheeled profiles sit in traffic
	assert.InDelta(t, 15, EffectiveSpeedKmh(core.ProfileCar, highway, 15), 1e-9)
	assert.InDelta(t, 15, EffectiveSpeedKmh(core.ProfileVan, surface, 15), 1e-9)

	// two-wheeled profiles lane-split up to a cap
	assert.InDelta(t, LaneSplitHighwayKmh, EffectiveSpeedKmh(core.ProfileMotorcycle, highway, 15), 1e-9)
	assert.InDelta(t, LaneSplitSurfaceKmh, EffectiveSpeedKmh(core.ProfileMotorcycle, surface, 15), 1e-9)
	// never faster than the free-flow speed
	assert.InDelta(t, 20, EffectiveSpeedKmh(core.ProfileBicycle, surface, 10), 1e-9)

	// pedestrians ignore traffic
	assert.InDelta(t, 5, EffectiveSpeedKmh(core.ProfilePedestrian, surface, 2), 1e-9)

	// samples above the free-flow speed change nothing
	assert.InDelta(t, 55, EffectiveSpeedKmh(core.ProfileCar, surface, 90), 1e-9)
}

func TestEffectiveSpeed_Floor(t *testing.T) {
	e := provider.Edge{SpeedLimit: 50, RoadClass: provider.ClassPrimary}
	assert.Equal(t, MinSpeedKmh, EffectiveSpeedKmh(core.ProfileCar, e, 0.5))
}

func TestAllowed(t *testing.T) {
	motorway := provider.Edge{RoadClass: provider.ClassMotorway}
	primary := provider.Edge{RoadClass: provider.ClassPrimary}

	assert.True(t, Allowed(core.ProfileCar, motorway))
	assert.False(t, Allowed(core.ProfilePedestrian, motorway))
	assert.False(t, Allowed(core.ProfileBicycle, motorway))
	assert.True(t, Allowed(core.ProfileBicycle, primary))
}
