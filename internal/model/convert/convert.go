// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pursuit-ops/isochroned/internal/model"
	"github.com/pursuit-ops/isochroned/pkg/core"
	"gorm.io/datatypes"
)

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// CacheToJSON marshals a track cache for the JSON column. A nil cache
// becomes a NULL column.
func CacheToJSON(c *core.TrackCache) (datatypes.JSON, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal track cache: %w", err)
	}
	return datatypes.JSON(data), nil
}

// CoreToTrack converts a core.Track to a GORM model.Track.
func CoreToTrack(t core.Track) (model.Track, error) {
	cache, err := CacheToJSON(t.Cache)
	if err != nil {
		return model.Track{}, err
	}
	m := model.Track{
		MissionID:                t.MissionID,
		OriginLng:                t.Origin.Lng,
		OriginLat:                t.Origin.Lat,
		OriginAt:                 nullTime(t.Origin.At),
		Profile:                  string(t.Profile),
		Strategy:                 string(t.Strategy),
		StartedAt:                t.StartedAt.UTC(),
		MaxDurationSeconds:       t.MaxDurationSeconds,
		RecomputeIntervalSeconds: t.RecomputeIntervalSeconds,
		Status:                   string(t.Status),
		LastComputedAt:           nullTime(t.LastComputedAt),
		ImmediateFirstCompute:    t.ImmediateFirstCompute,
		Cache:                    cache,
	}
	m.ID = t.ID
	return m, nil
}

// TrackToCore converts a GORM model.Track to a core.Track.
func TrackToCore(m model.Track) (core.Track, error) {
	t := TrackFieldsToCore(m)
	if len(m.Cache) > 0 && string(m.Cache) != "null" {
		var c core.TrackCache
		if err := json.Unmarshal(m.Cache, &c); err != nil {
			return core.Track{}, fmt.Errorf("unmarshal cache of track %d: %w", m.ID, err)
		}
		t.Cache = &c
	}
	return t, nil
}

// TrackFieldsToCore converts a GORM model.Track to a core.Track without
// decoding its cache column.
func TrackFieldsToCore(m model.Track) core.Track {
	return core.Track{
		ID:        m.ID,
		MissionID: m.MissionID,
		Origin: core.Origin{
			LngLat: core.LngLat{Lng: m.OriginLng, Lat: m.OriginLat},
			At:     timePtr(m.OriginAt),
		},
		Profile:                  core.ParseProfile(m.Profile),
		Strategy:                 core.Strategy(m.Strategy),
		StartedAt:                m.StartedAt.UTC(),
		MaxDurationSeconds:       m.MaxDurationSeconds,
		RecomputeIntervalSeconds: m.RecomputeIntervalSeconds,
		Status:                   core.Status(m.Status),
		LastComputedAt:           timePtr(m.LastComputedAt),
		ImmediateFirstCompute:    m.ImmediateFirstCompute,
	}
}

// CoreToHistory converts a core.IsochroneRecord to a GORM model.IsochroneHistory.
func CoreToHistory(r core.IsochroneRecord) model.IsochroneHistory {
	return model.IsochroneHistory{
		TrackID:       r.TrackID,
		MissionID:     r.MissionID,
		ComputedAt:    r.ComputedAt.UTC(),
		BudgetSeconds: r.BudgetSeconds,
		Polygon:       datatypes.JSON(r.Polygon),
		ProviderMeta:  datatypes.JSON(r.ProviderMeta),
	}
}

// HistoryToCore converts a GORM model.IsochroneHistory to a core.IsochroneRecord.
func HistoryToCore(h model.IsochroneHistory) core.IsochroneRecord {
	return core.IsochroneRecord{
		TrackID:       h.TrackID,
		MissionID:     h.MissionID,
		ComputedAt:    h.ComputedAt.UTC(),
		BudgetSeconds: h.BudgetSeconds,
		Polygon:       json.RawMessage(h.Polygon),
		ProviderMeta:  json.RawMessage(h.ProviderMeta),
	}
}
