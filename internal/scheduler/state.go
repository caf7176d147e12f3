package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/pursuit-ops/isochroned/internal/strategy/roadgraph"
	"github.com/pursuit-ops/isochroned/internal/strategy/tiles"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// StrategyState is the persisted per-track strategy state. Kind selects
// which variant is populated.
type StrategyState struct {
	Kind      core.Strategy    `json:"kind"`
	Tiles     *tiles.State     `json:"tiles,omitempty"`
	RoadGraph *roadgraph.State `json:"roadgraph,omitempty"`
}

// DecodeState reads the state blob of a track. A missing, unreadable or
// foreign blob yields an empty state of the requested kind.
func DecodeState(raw json.RawMessage, kind core.Strategy) StrategyState {
	fresh := StrategyState{Kind: kind}
	if len(raw) == 0 {
		return fresh
	}
	var s StrategyState
	if err := json.Unmarshal(raw, &s); err != nil || s.Kind != kind {
		return fresh
	}
	return s
}

// Encode serializes the state. A state without a variant encodes to nil.
func (s StrategyState) Encode() (json.RawMessage, error) {
	if s.Tiles == nil && s.RoadGraph == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", s.Kind, err)
	}
	return data, nil
}
