package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pursuit-ops/isochroned/pkg/core"
	"github.com/wroge/wgs84"
)

// Web mercator tiles are square in EPSG:3857, so all tile math is done there
// and only the results are converted back to EPSG:4326.

const (
	mercatorOriginShift = 20037508.342789244
	maxMercatorLat      = 85.05112878
)

// ErrInvalidTileKey is returned when a tile key cannot be parsed
var ErrInvalidTileKey = errors.New("invalid tile key")

var (
	to3857 = wgs84.EPSG().Transform(4326, 3857)
	to4326 = wgs84.EPSG().Transform(3857, 4326)
)

// Tile is a cell of the standard power-of-two map tiling.
type Tile struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// TileAt returns the tile at zoom z containing the position.
func TileAt(p core.LngLat, z int) Tile {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	mx, my, _ := to3857(p.Lng, lat, 0)

	n := 1 << z
	span := tileSpan(z)
	x := int(math.Floor((mx + mercatorOriginShift) / span))
	y := int(math.Floor((mercatorOriginShift - my) / span))
	return Tile{Z: z, X: clampIndex(x, n), Y: clampIndex(y, n)}
}

// Key returns the "z/x/y" form used as a map key in persisted state.
func (t Tile) Key() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

func (t Tile) String() string {
	return t.Key()
}

// ParseTileKey parses a "z/x/y" key.
func ParseTileKey(key string) (Tile, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return Tile{}, ErrInvalidTileKey
	}
	var vals [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return Tile{}, ErrInvalidTileKey
		}
		vals[i] = v
	}
	return Tile{Z: vals[0], X: vals[1], Y: vals[2]}, nil
}

// Bounds returns the south-west and north-east corners of the tile.
func (t Tile) Bounds() (sw, ne core.LngLat) {
	span := tileSpan(t.Z)
	west := float64(t.X)*span - mercatorOriginShift
	north := mercatorOriginShift - float64(t.Y)*span

	swLng, swLat, _ := to4326(west, north-span, 0)
	neLng, neLat, _ := to4326(west+span, north, 0)
	return core.LngLat{Lng: swLng, Lat: swLat}, core.LngLat{Lng: neLng, Lat: neLat}
}

// Centroid returns the center of the tile in EPSG:4326.
func (t Tile) Centroid() core.LngLat {
	span := tileSpan(t.Z)
	cx := (float64(t.X)+0.5)*span - mercatorOriginShift
	cy := mercatorOriginShift - (float64(t.Y)+0.5)*span
	lng, lat, _ := to4326(cx, cy, 0)
	return core.LngLat{Lng: lng, Lat: lat}
}

// Ring returns the tiles at exactly Chebyshev distance r from t.
// Tiles outside the valid y range are skipped; x wraps around the antimeridian.
func (t Tile) Ring(r int) []Tile {
	if r <= 0 {
		return []Tile{t}
	}
	n := 1 << t.Z
	var out []Tile
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if max(abs(dx), abs(dy)) != r {
				continue
			}
			y := t.Y + dy
			if y < 0 || y >= n {
				continue
			}
			x := ((t.X+dx)%n + n) % n
			out = append(out, Tile{Z: t.Z, X: x, Y: y})
		}
	}
	return out
}

// Block returns t and every tile within Chebyshev distance r.
func (t Tile) Block(r int) []Tile {
	out := []Tile{t}
	for i := 1; i <= r; i++ {
		out = append(out, t.Ring(i)...)
	}
	return out
}

func tileSpan(z int) float64 {
	return 2 * mercatorOriginShift / float64(int(1)<<z)
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
