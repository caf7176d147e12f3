// pkg/core/track.go
package core

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a pursuit track.
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
	StatusExpired Status = "expired"
)

// Strategy names the reachability strategy used for a track.
type Strategy string

const (
	StrategyCircle         Strategy = "circle"
	StrategyTiles          Strategy = "tiles"
	StrategyRoadGraph      Strategy = "roadgraph"
	StrategyReachableRange Strategy = "reachable_range"
)

// Origin is the last known position of the pursued entity.
// At is the optional timestamp the position was reported at.
type Origin struct {
	LngLat
	At *time.Time `json:"at,omitempty"`
}

// Track identifies one pursued entity within one mission.
type Track struct {
	ID                       uint
	MissionID                uint
	Origin                   Origin
	Profile                  VehicleProfile
	Strategy                 Strategy
	StartedAt                time.Time
	MaxDurationSeconds       int
	RecomputeIntervalSeconds int
	Status                   Status
	LastComputedAt           *time.Time
	// ImmediateFirstCompute lets a freshly created track be computed once
	// without waiting for its first recompute interval.
	ImmediateFirstCompute bool
	Cache                 *TrackCache
}

// TrackCache is the last computed isochrone plus the strategy state needed
// to continue from it on the next tick.
type TrackCache struct {
	ComputedAt     time.Time       `json:"computedAt"`
	ElapsedSeconds float64         `json:"elapsedSeconds"`
	Polygon        json.RawMessage `json:"polygon"`
	Meta           Meta            `json:"meta"`
	State          json.RawMessage `json:"state,omitempty"`
}

// TrackUpdate describes the fields the scheduler writes back.
// Nil fields are left untouched.
type TrackUpdate struct {
	Status         *Status
	Cache          *TrackCache
	ClearCache     bool
	LastComputedAt *time.Time
}

// IsochroneRecord is one append-only history entry.
type IsochroneRecord struct {
	TrackID       uint
	MissionID     uint
	ComputedAt    time.Time
	BudgetSeconds float64
	Polygon       json.RawMessage
	ProviderMeta  json.RawMessage
}
