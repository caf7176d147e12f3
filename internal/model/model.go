package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Track{},
	&IsochroneHistory{},
}

// Track is one pursued entity within a mission.
type Track struct {
	gorm.Model
	MissionID                uint           `json:"missionId" gorm:"index:idx_track_mission_status"`
	OriginLng                float64        `json:"originLng"`
	OriginLat                float64        `json:"originLat"`
	OriginAt                 sql.NullTime   `json:"originAt"`
	Profile                  string         `json:"profile" gorm:"size:32"`
	Strategy                 string         `json:"strategy" gorm:"size:32"`
	StartedAt                time.Time      `json:"startedAt" gorm:"index:idx_track_started_at"`
	MaxDurationSeconds       int            `json:"maxDurationSeconds"`
	RecomputeIntervalSeconds int            `json:"recomputeIntervalSeconds"`
	Status                   string         `json:"status" gorm:"size:16;index:idx_track_mission_status"`
	LastComputedAt           sql.NullTime   `json:"lastComputedAt"`
	ImmediateFirstCompute    bool           `json:"immediateFirstCompute"`
	Cache                    datatypes.JSON `json:"cache"`
}

func (*Track) TableName() string {
	return "tracks"
}

// IsochroneHistory is the append-only record of every computed isochrone
type IsochroneHistory struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt     time.Time      `json:"createdAt"`
	TrackID       uint           `json:"trackId" gorm:"index:idx_history_track_id"`
	MissionID     uint           `json:"missionId" gorm:"index:idx_history_mission_id"`
	ComputedAt    time.Time      `json:"computedAt" gorm:"index:idx_history_computed_at"`
	BudgetSeconds float64        `json:"budgetSeconds"`
	Polygon       datatypes.JSON `json:"polygon"`
	ProviderMeta  datatypes.JSON `json:"providerMeta"`
}

func (*IsochroneHistory) TableName() string {
	return "isochrone_histories"
}
