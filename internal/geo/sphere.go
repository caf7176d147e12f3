package geo

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// EarthRadiusMeters is the mean Earth radius used for all great-circle math.
const EarthRadiusMeters = 6371008.8

// Distance returns the great-circle distance between two positions in meters.
func Distance(a, b core.LngLat) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return la.Distance(lb).Radians() * EarthRadiusMeters
}

// Destination returns the point reached by travelling meters from origin
// along the initial bearing (degrees clockwise from north).
func Destination(origin core.LngLat, bearingDeg, meters float64) core.LngLat {
	delta := meters / EarthRadiusMeters
	theta := bearingDeg * math.Pi / 180
	phi1 := origin.Lat * math.Pi / 180
	lambda1 := origin.Lng * math.Pi / 180

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*sinPhi2,
	)

	return core.LngLat{
		Lng: normalizeLng(lambda2 * 180 / math.Pi),
		Lat: phi2 * 180 / math.Pi,
	}
}

func normalizeLng(lng float64) float64 {
	lng = math.Mod(lng+540, 360) - 180
	if lng == -180 {
		return 180
	}
	return lng
}
