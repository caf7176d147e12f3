package streaming

import (
	"encoding/json"
	"time"

	"github.com/pursuit-ops/isochroned/pkg/core"
)

// Event type constants for mission subscribers.
const (
	TypeTrackStopped    = "track.stopped"
	TypeTrackExpired    = "track.expired"
	TypeTrackRecomputed = "track.recomputed"
)

// Event is one notification for a mission-scoped audience.
type Event struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	TrackID   uint             `json:"trackId"`
	MissionID uint             `json:"missionId"`
	Status    core.Status      `json:"status"`
	Cache     *core.TrackCache `json:"cache,omitempty"`
	Time      time.Time        `json:"time"`
}

// Envelope wraps all messages sent to subscribers.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes the event inside an Envelope.
func (e Event) Marshal() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: e.Type, Payload: raw})
}
