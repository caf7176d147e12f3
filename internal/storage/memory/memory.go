// internal/storage/memory/memory.go
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pursuit-ops/isochroned/internal/storage"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// Backend keeps tracks and history in process memory.
type Backend struct {
	tracks  map[uint]*core.Track
	history []core.IsochroneRecord

	idCounter uint
	mu        sync.RWMutex
}

var _ storage.Store = (*Backend)(nil)

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		tracks: make(map[uint]*core.Track),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// CreateTrack stores t and assigns its ID when unset.
func (b *Backend) CreateTrack(_ context.Context, t *core.Track) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.ID == 0 {
		b.idCounter++
		t.ID = b.idCounter
	} else if t.ID > b.idCounter {
		b.idCounter = t.ID
	}
	if t.Status == "" {
		t.Status = core.StatusActive
	}
	t.Profile = core.ParseProfile(string(t.Profile))
	b.tracks[t.ID] = cloneTrack(t)
	return nil
}

// GetTrack returns a copy of the track.
func (b *Backend) GetTrack(_ context.Context, id uint) (*core.Track, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.tracks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTrack(t), nil
}

// DeleteTrack removes a track. It is not part of storage.Store; tests use
// it to simulate concurrent deletion.
func (b *Backend) DeleteTrack(id uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tracks, id)
}

func (b *Backend) ListActiveTracks(_ context.Context, startedAfter time.Time) ([]core.Track, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Track
	for _, t := range b.tracks {
		if t.Status == core.StatusActive && t.StartedAt.After(startedAfter) {
			out = append(out, *cloneTrack(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Backend) UpdateTrackIfStatus(_ context.Context, id uint, expected core.Status, upd core.TrackUpdate) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tracks[id]
	if !ok || t.Status != expected {
		return false, nil
	}
	applyUpdate(t, upd)
	return true, nil
}

func (b *Backend) StopActiveStartedBefore(_ context.Context, before time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for _, t := range b.tracks {
		if t.Status == core.StatusActive && !t.StartedAt.After(before) {
			t.Status = core.StatusStopped
			t.Cache = nil
			n++
		}
	}
	return n, nil
}

func (b *Backend) AppendHistory(_ context.Context, rec core.IsochroneRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, rec)
	return nil
}

// ListHistory returns the newest records for a track first. limit <= 0
// returns all of them.
func (b *Backend) ListHistory(_ context.Context, trackID uint, limit int) ([]core.IsochroneRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.IsochroneRecord
	for i := len(b.history) - 1; i >= 0; i-- {
		if b.history[i].TrackID != trackID {
			continue
		}
		out = append(out, b.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func applyUpdate(t *core.Track, upd core.TrackUpdate) {
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.ClearCache {
		t.Cache = nil
	}
	if upd.Cache != nil {
		t.Cache = cloneCache(upd.Cache)
	}
	if upd.LastComputedAt != nil {
		at := *upd.LastComputedAt
		t.LastComputedAt = &at
	}
}

func cloneTrack(t *core.Track) *core.Track {
	c := *t
	if t.LastComputedAt != nil {
		at := *t.LastComputedAt
		c.LastComputedAt = &at
	}
	if t.Origin.At != nil {
		at := *t.Origin.At
		c.Origin.At = &at
	}
	c.Cache = cloneCache(t.Cache)
	return &c
}

func cloneCache(c *core.TrackCache) *core.TrackCache {
	if c == nil {
		return nil
	}
	out := *c
	out.Polygon = append(json.RawMessage(nil), c.Polygon...)
	out.State = append(json.RawMessage(nil), c.State...)
	out.Meta.Warnings = append([]string(nil), c.Meta.Warnings...)
	out.Meta.FailedTiles = append([]string(nil), c.Meta.FailedTiles...)
	return &out
}
