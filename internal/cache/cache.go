package cache

import (
	"sort"
	"sync"

	"github.com/pursuit-ops/isochroned/pkg/core"
)

// ModeMemo remembers which provider travel modes were rejected for a
// vehicle profile so later calls skip them.
type ModeMemo struct {
	mu          sync.RWMutex
	unsupported map[core.VehicleProfile]map[string]struct{}
}

// NewModeMemo creates an empty memo.
func NewModeMemo() *ModeMemo {
	return &ModeMemo{
		unsupported: make(map[core.VehicleProfile]map[string]struct{}),
	}
}

// Unsupported reports whether mode was rejected for profile.
func (c *ModeMemo) Unsupported(profile core.VehicleProfile, mode string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.unsupported[profile][mode]
	return ok
}

// MarkUnsupported records that mode was rejected for profile.
func (c *ModeMemo) MarkUnsupported(profile core.VehicleProfile, mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	modes, ok := c.unsupported[profile]
	if !ok {
		modes = make(map[string]struct{})
		c.unsupported[profile] = modes
	}
	modes[mode] = struct{}{}
}

// Modes returns the rejected modes for profile, sorted.
func (c *ModeMemo) Modes(profile core.VehicleProfile) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.unsupported[profile]))
	for m := range c.unsupported[profile] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
