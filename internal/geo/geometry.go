package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// LineFromPairs converts [[lng,lat],...] pairs into positions.
func LineFromPairs(pairs [][]float64) ([]core.LngLat, error) {
	if len(pairs) < 2 {
		return nil, fmt.Errorf("line must have at least 2 points, got %d", len(pairs))
	}

	line := make([]core.LngLat, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		line[i] = core.LngLat{Lng: pair[0], Lat: pair[1]}
	}
	return line, nil
}

// CloseRing returns the ring with its first point repeated at the end if
// it was not already closed.
func CloseRing(ring []core.LngLat) []core.LngLat {
	if len(ring) == 0 {
		return ring
	}
	if ring[0] == ring[len(ring)-1] {
		return ring
	}
	closed := make([]core.LngLat, len(ring), len(ring)+1)
	copy(closed, ring)
	return append(closed, ring[0])
}

// PolygonGeometry builds a single-ring polygon, closing the ring if needed.
// Rings that are degenerate or self-intersecting are rejected.
func PolygonGeometry(ring []core.LngLat) (geom.Geometry, error) {
	ring = CloseRing(ring)
	ls, err := geom.NewLineString(sequence(ring))
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("invalid polygon ring: %w", err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ls})
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("invalid polygon: %w", err)
	}
	return poly.AsGeometry(), nil
}

// TilePolygon builds the axis-aligned boundary box of a tile.
func TilePolygon(t Tile) (geom.Geometry, error) {
	sw, ne := t.Bounds()
	return PolygonGeometry([]core.LngLat{
		{Lng: sw.Lng, Lat: sw.Lat},
		{Lng: ne.Lng, Lat: sw.Lat},
		{Lng: ne.Lng, Lat: ne.Lat},
		{Lng: sw.Lng, Lat: ne.Lat},
	})
}

// MultiLineStringGeometry unions line geometries into one MultiLineString.
// Lines without two distinct points are skipped.
func MultiLineStringGeometry(lines [][]core.LngLat) geom.Geometry {
	lss := make([]geom.LineString, 0, len(lines))
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		ls, err := geom.NewLineString(sequence(line))
		if err != nil {
			continue
		}
		lss = append(lss, ls)
	}
	return geom.NewMultiLineString(lss).AsGeometry()
}

// ExteriorRing returns the exterior ring of a polygon geometry.
func ExteriorRing(g geom.Geometry) ([]core.LngLat, bool) {
	if !g.IsPolygon() {
		return nil, false
	}
	seq := g.MustAsPolygon().ExteriorRing().Coordinates()
	ring := make([]core.LngLat, seq.Length())
	for i := range ring {
		xy := seq.GetXY(i)
		ring[i] = core.LngLat{Lng: xy.X, Lat: xy.Y}
	}
	return ring, true
}

func sequence(pts []core.LngLat) geom.Sequence {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.Lng, p.Lat)
	}
	return geom.NewSequence(flat, geom.DimXY)
}
