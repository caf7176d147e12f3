// Package storetest is a behavioural test suite shared by every
// storage.Store implementation.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuit-ops/isochroned/internal/storage"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTrack(mission uint, startedAt time.Time) *core.Track {
	return &core.Track{
		MissionID:                mission,
		Origin:                   core.Origin{LngLat: core.LngLat{Lng: 13.405, Lat: 52.52}},
		Profile:                  core.ProfileCar,
		Strategy:                 core.StrategyTiles,
		StartedAt:                startedAt,
		MaxDurationSeconds:       3600,
		RecomputeIntervalSeconds: 20,
		Status:                   core.StatusActive,
	}
}

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tr := newTrack(1, base)
		tr.ImmediateFirstCompute = true
		require.NoError(t, s.CreateTrack(ctx, tr))
		require.NotZero(t, tr.ID)

		got, err := s.GetTrack(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, tr.MissionID, got.MissionID)
		assert.Equal(t, tr.Origin.LngLat, got.Origin.LngLat)
		assert.Equal(t, core.ProfileCar, got.Profile)
		assert.Equal(t, core.StrategyTiles, got.Strategy)
		assert.True(t, got.StartedAt.Equal(base))
		assert.Equal(t, core.StatusActive, got.Status)
		assert.True(t, got.ImmediateFirstCompute)
		assert.Nil(t, got.LastComputedAt)
		assert.Nil(t, got.Cache)
	})

	t.Run("ProfileNormalized", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tr := newTrack(1, base)
		tr.Profile = "Truck"
		require.NoError(t, s.CreateTrack(ctx, tr))

		got, err := s.GetTrack(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, core.ProfileTruck, got.Profile)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTrack(context.Background(), 404)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListActiveTracks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		old := newTrack(1, base.Add(-time.Hour))
		fresh := newTrack(1, base.Add(time.Minute))
		stopped := newTrack(2, base.Add(time.Minute))
		stopped.Status = core.StatusStopped
		for _, tr := range []*core.Track{old, fresh, stopped} {
			require.NoError(t, s.CreateTrack(ctx, tr))
		}

		active, err := s.ListActiveTracks(ctx, base)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, fresh.ID, active[0].ID)
	})

	t.Run("UpdateTrackIfStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tr := newTrack(1, base)
		require.NoError(t, s.CreateTrack(ctx, tr))

		now := base.Add(time.Minute)
		cache := &core.TrackCache{
			ComputedAt:     now,
			ElapsedSeconds: 60,
			Polygon:        json.RawMessage(`{"type":"FeatureCollection","features":[]}`),
			Meta:           core.Meta{Provider: core.StrategyCircle, Fallback: true, Reason: core.ReasonEmptyResult},
			State:          json.RawMessage(`{"kind":"tiles"}`),
		}
		ok, err := s.UpdateTrackIfStatus(ctx, tr.ID, core.StatusActive, core.TrackUpdate{Cache: cache, LastComputedAt: &now})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetTrack(ctx, tr.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Cache)
		require.NotNil(t, got.LastComputedAt)
		assert.True(t, got.LastComputedAt.Equal(now))
		assert.Equal(t, 60.0, got.Cache.ElapsedSeconds)
		assert.True(t, got.Cache.Meta.Fallback)
		assert.JSONEq(t, `{"kind":"tiles"}`, string(got.Cache.State))

		// wrong expected status leaves the track alone
		expired := core.StatusExpired
		ok, err = s.UpdateTrackIfStatus(ctx, tr.ID, core.StatusStopped, core.TrackUpdate{Status: &expired})
		require.NoError(t, err)
		assert.False(t, ok)

		stopped := core.StatusStopped
		ok, err = s.UpdateTrackIfStatus(ctx, tr.ID, core.StatusActive, core.TrackUpdate{Status: &stopped, ClearCache: true})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err = s.GetTrack(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusStopped, got.Status)
		assert.Nil(t, got.Cache)
	})

	t.Run("UpdateMissingTrack", func(t *testing.T) {
		s := newStore(t)
		stopped := core.StatusStopped
		ok, err := s.UpdateTrackIfStatus(context.Background(), 99, core.StatusActive, core.TrackUpdate{Status: &stopped})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("StopActiveStartedBefore", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		stale := newTrack(1, base.Add(-time.Hour))
		current := newTrack(2, base.Add(time.Second))
		for _, tr := range []*core.Track{stale, current} {
			require.NoError(t, s.CreateTrack(ctx, tr))
		}

		n, err := s.StopActiveStartedBefore(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := s.GetTrack(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusStopped, got.Status)

		got, err = s.GetTrack(ctx, current.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusActive, got.Status)
	})

	t.Run("History", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendHistory(ctx, core.IsochroneRecord{
				TrackID:       7,
				MissionID:     1,
				ComputedAt:    base.Add(time.Duration(i) * time.Minute),
				BudgetSeconds: float64(60 * (i + 1)),
				Polygon:       json.RawMessage(`{"type":"FeatureCollection","features":[]}`),
				ProviderMeta:  json.RawMessage(`{"provider":"circle"}`),
			}))
		}
		require.NoError(t, s.AppendHistory(ctx, core.IsochroneRecord{TrackID: 8, MissionID: 1, ComputedAt: base}))

		all, err := s.ListHistory(ctx, 7, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, 180.0, all[0].BudgetSeconds, "newest first")
		assert.JSONEq(t, `{"provider":"circle"}`, string(all[0].ProviderMeta))

		limited, err := s.ListHistory(ctx, 7, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}
