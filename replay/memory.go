package replay

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// MemoryCache is an in-process Cache backed by a sharded concurrent map.
type MemoryCache struct {
	entries cmap.ConcurrentMap[string, time.Time]
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: cmap.New[time.Time](),
		now:     time.Now,
	}
}

// Claim implements Cache. An expired entry for the same nonce is replaced.
func (m *MemoryCache) Claim(_ context.Context, nonce string, expiresAt time.Time) (bool, error) {
	if m.entries.SetIfAbsent(nonce, expiresAt) {
		return true, nil
	}
	now := m.now()
	removed := m.entries.RemoveCb(nonce, func(_ string, exp time.Time, exists bool) bool {
		return exists && !now.Before(exp)
	})
	if !removed {
		return false, nil
	}
	return m.entries.SetIfAbsent(nonce, expiresAt), nil
}

// Prune drops entries whose token expired at or before now and returns how many were removed.
func (m *MemoryCache) Prune(now time.Time) int {
	removed := 0
	for _, nonce := range m.entries.Keys() {
		if m.entries.RemoveCb(nonce, func(_ string, exp time.Time, exists bool) bool {
			return exists && !now.Before(exp)
		}) {
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked nonces.
func (m *MemoryCache) Len() int {
	return m.entries.Count()
}
