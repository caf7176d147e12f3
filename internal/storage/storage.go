// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pursuit-ops/isochroned/pkg/core"
)

// ErrNotFound is returned when a track does not exist.
var ErrNotFound = errors.New("track not found")

// Store is the interface all storage implementations must satisfy
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	// Tracks
	CreateTrack(ctx context.Context, t *core.Track) error
	GetTrack(ctx context.Context, id uint) (*core.Track, error)
	// ListActiveTracks returns active tracks started strictly after
	// startedAfter. A track whose cache cannot be decoded is returned with
	// a nil cache.
	ListActiveTracks(ctx context.Context, startedAfter time.Time) ([]core.Track, error)
	// UpdateTrackIfStatus applies upd only while the track is in status
	// expected. It reports whether the update was applied.
	UpdateTrackIfStatus(ctx context.Context, id uint, expected core.Status, upd core.TrackUpdate) (bool, error)
	// StopActiveStartedBefore stops every active track started at or before
	// the given time, clearing its cache, and returns how many were stopped.
	StopActiveStartedBefore(ctx context.Context, before time.Time) (int64, error)

	// History
	AppendHistory(ctx context.Context, rec core.IsochroneRecord) error
	ListHistory(ctx context.Context, trackID uint, limit int) ([]core.IsochroneRecord, error)
}
