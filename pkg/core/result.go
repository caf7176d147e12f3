package core

import (
	"encoding/json"
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Request is the input every strategy receives for one computation.
type Request struct {
	TrackID        uint
	Origin         LngLat
	ElapsedSeconds float64
	Profile        VehicleProfile
	Now            time.Time
}

// Feature is one output geometry with its display properties.
type Feature struct {
	Geometry   geom.Geometry
	Properties map[string]any
}

// Meta describes how a result was produced. It is persisted alongside the
// geometry so degraded output can be told apart from full-fidelity output.
type Meta struct {
	Provider       Strategy        `json:"provider"`
	Reason         string          `json:"reason,omitempty"`
	Fallback       bool            `json:"fallback,omitempty"`
	FallbackFrom   Strategy        `json:"fallbackFrom,omitempty"`
	Tier           string          `json:"tier,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Profile        VehicleProfile  `json:"profile,omitempty"`
	ElapsedSeconds float64         `json:"elapsedSeconds,omitempty"`
	BudgetSeconds  float64         `json:"budgetSeconds,omitempty"`
	RadiusMeters   float64         `json:"radiusMeters,omitempty"`
	SpeedKmh       float64         `json:"speedKmh,omitempty"`
	TravelMode     string          `json:"travelMode,omitempty"`
	RequestedMode  string          `json:"requestedMode,omitempty"`
	TileCount      int             `json:"tileCount,omitempty"`
	EdgeCount      int             `json:"edgeCount,omitempty"`
	ReachedEdges   int             `json:"reachedEdges,omitempty"`
	FailedTiles    []string        `json:"failedTiles,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Result is the output of a strategy.
type Result struct {
	Features []Feature
	Meta     Meta
}

// EmptyResult returns a result with no geometry and the given reason code.
func EmptyResult(provider Strategy, reason string) Result {
	return Result{Meta: Meta{Provider: provider, Reason: reason}}
}

// Empty reports whether the result carries no geometry.
func (r Result) Empty() bool {
	return len(r.Features) == 0
}

// GeoJSON renders the features as a GeoJSON FeatureCollection.
func (r Result) GeoJSON() (json.RawMessage, error) {
	fc := make(geom.GeoJSONFeatureCollection, 0, len(r.Features))
	for _, f := range r.Features {
		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		fc = append(fc, geom.GeoJSONFeature{Geometry: f.Geometry, Properties: props})
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("marshal feature collection: %w", err)
	}
	return data, nil
}

// Computation summarizes one scheduler computation for metrics sinks.
type Computation struct {
	TrackID        uint
	MissionID      uint
	Strategy       Strategy
	Provider       Strategy
	Fallback       bool
	Reason         string
	Features       int
	ElapsedSeconds float64
	Duration       time.Duration
	At             time.Time
}
