package tiles

import (
	"sort"

	"github.com/pursuit-ops/isochroned/internal/geo"
)

// Status is the fill state of a frontier tile.
type Status string

const (
	StatusNew     Status = "new"
	StatusFilling Status = "filling"
	StatusFull    Status = "full"
)

// TileState is the per-tile bookkeeping carried between calls.
type TileState struct {
	Tile               geo.Tile `json:"tile"`
	Status             Status   `json:"status"`
	Coverage           float64  `json:"coverage"`
	BestArrivalSeconds float64  `json:"bestArrivalSeconds"`
	TraversalSeconds   float64  `json:"traversalSeconds,omitempty"`
	Memoized           bool     `json:"memoized,omitempty"`
	SpeedKmh           float64  `json:"speedKmh,omitempty"`
}

// EffectiveSpeedKmh is the speed implied by the memoized traversal time.
func (t *TileState) EffectiveSpeedKmh() float64 {
	if !t.Memoized || t.TraversalSeconds <= 0 {
		return BaseSpeedKmh
	}
	return BaseSpeedKmh * BaseTileSeconds / t.TraversalSeconds
}

// State is the frontier of one track, keyed by tile key.
type State struct {
	Tiles map[string]*TileState `json:"tiles"`
}

// NewState returns a state seeded with a single tile.
func NewState(seed geo.Tile) *State {
	return &State{Tiles: map[string]*TileState{
		seed.Key(): {Tile: seed, Status: StatusNew},
	}}
}

// Len returns the number of tiles in the frontier.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tiles)
}

// keys returns tile keys ordered by arrival time, then key.
func (s *State) keys() []string {
	out := make([]string, 0, len(s.Tiles))
	for k := range s.Tiles {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := s.Tiles[out[i]], s.Tiles[out[j]]
		if a.BestArrivalSeconds != b.BestArrivalSeconds {
			return a.BestArrivalSeconds < b.BestArrivalSeconds
		}
		return out[i] < out[j]
	})
	return out
}
