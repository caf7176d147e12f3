// Package gormstorage implements storage.Store on top of GORM, backed by
// PostgreSQL or SQLite.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pursuit-ops/isochroned/internal/database"
	"github.com/pursuit-ops/isochroned/internal/model"
	"github.com/pursuit-ops/isochroned/internal/model/convert"
	"github.com/pursuit-ops/isochroned/internal/storage"
	"github.com/pursuit-ops/isochroned/pkg/core"
	"gorm.io/gorm"
)

// Backend stores tracks and isochrone history through GORM.
type Backend struct {
	db *gorm.DB
}

var _ storage.Store = (*Backend)(nil)

// New creates a backend over an open connection.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init migrates the schema.
func (b *Backend) Init() error {
	return database.Migrate(b.db)
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) CreateTrack(ctx context.Context, t *core.Track) error {
	if t.Status == "" {
		t.Status = core.StatusActive
	}
	t.Profile = core.ParseProfile(string(t.Profile))
	m, err := convert.CoreToTrack(*t)
	if err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create track: %w", err)
	}
	t.ID = m.ID
	return nil
}

func (b *Backend) GetTrack(ctx context.Context, id uint) (*core.Track, error) {
	var m model.Track
	err := b.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track %d: %w", id, err)
	}
	t, err := convert.TrackToCore(m)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (b *Backend) ListActiveTracks(ctx context.Context, startedAfter time.Time) ([]core.Track, error) {
	var rows []model.Track
	err := b.db.WithContext(ctx).
		Where("status = ? AND started_at > ?", string(core.StatusActive), startedAfter.UTC()).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active tracks: %w", err)
	}

	out := make([]core.Track, 0, len(rows))
	for _, m := range rows {
		t, err := convert.TrackToCore(m)
		if err != nil {
			// an unreadable cache must not hide the track from scheduling
			t = convert.TrackFieldsToCore(m)
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *Backend) UpdateTrackIfStatus(ctx context.Context, id uint, expected core.Status, upd core.TrackUpdate) (bool, error) {
	cols := map[string]any{}
	if upd.Status != nil {
		cols["status"] = string(*upd.Status)
	}
	if upd.ClearCache {
		cols["cache"] = nil
	}
	if upd.Cache != nil {
		cache, err := convert.CacheToJSON(upd.Cache)
		if err != nil {
			return false, err
		}
		cols["cache"] = cache
	}
	if upd.LastComputedAt != nil {
		cols["last_computed_at"] = upd.LastComputedAt.UTC()
	}

	q := b.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ? AND status = ?", id, string(expected))

	if len(cols) == 0 {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return false, fmt.Errorf("check track %d: %w", id, err)
		}
		return n > 0, nil
	}

	res := q.Updates(cols)
	if res.Error != nil {
		return false, fmt.Errorf("update track %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (b *Backend) StopActiveStartedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := b.db.WithContext(ctx).Model(&model.Track{}).
		Where("status = ? AND started_at <= ?", string(core.StatusActive), before.UTC()).
		Updates(map[string]any{
			"status": string(core.StatusStopped),
			"cache":  nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("stop stale tracks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (b *Backend) AppendHistory(ctx context.Context, rec core.IsochroneRecord) error {
	h := convert.CoreToHistory(rec)
	if err := b.db.WithContext(ctx).Create(&h).Error; err != nil {
		return fmt.Errorf("append history for track %d: %w", rec.TrackID, err)
	}
	return nil
}

// ListHistory returns the newest records for a track first. limit <= 0
// returns all of them.
func (b *Backend) ListHistory(ctx context.Context, trackID uint, limit int) ([]core.IsochroneRecord, error) {
	q := b.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("computed_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.IsochroneHistory
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list history for track %d: %w", trackID, err)
	}

	out := make([]core.IsochroneRecord, 0, len(rows))
	for _, h := range rows {
		out = append(out, convert.HistoryToCore(h))
	}
	return out, nil
}
