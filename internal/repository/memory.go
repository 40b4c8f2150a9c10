package repository

import (
	"context"
	"sync"
	"time"

	"agenda/internal/ratelimit"
)

type memoryEntry struct {
	state     ratelimit.State
	expiresAt time.Time
}

// MemorySessionRepository is the in-process fallback store. Entries expire
// after ttl like their redis counterparts.
type MemorySessionRepository struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{ttl: ttl, now: time.Now}
}

func (r *MemorySessionRepository) GetLimiterState(ctx context.Context, sessionID string) (*ratelimit.State, error) {
	val, ok := r.entries.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.entries.Delete(sessionID)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (r *MemorySessionRepository) SetLimiterState(ctx context.Context, sessionID string, state *ratelimit.State) error {
	if state == nil {
		r.entries.Delete(sessionID)
		return nil
	}
	r.entries.Store(sessionID, memoryEntry{state: *state, expiresAt: r.now().Add(r.ttl)})
	return nil
}

func (r *MemorySessionRepository) ClearLimiterState(ctx context.Context, sessionID string) error {
	r.entries.Delete(sessionID)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (r *MemorySessionRepository) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.now()
	removed := 0
	r.entries.Range(func(key, val any) bool {
		if now.After(val.(memoryEntry).expiresAt) {
			r.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
