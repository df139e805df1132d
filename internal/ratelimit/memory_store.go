package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements WindowStore with an in-process map. It is used in
// tests and single-instance deployments without Redis; the mutex gives the
// same check-and-record atomicity the Lua script provides.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]int64)}
}

func (s *MemoryStore) Admit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	entries := s.windows[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}

	oldest := nowMs
	if len(kept) > 0 {
		oldest = kept[0]
	}

	if len(kept) >= limit {
		s.windows[key] = kept
		return Admission{Allowed: false, Count: len(kept), OldestAt: time.UnixMilli(oldest)}, nil
	}

	kept = append(kept, nowMs)
	s.windows[key] = kept
	if len(kept) == 1 {
		oldest = nowMs
	}
	return Admission{Allowed: true, Count: len(kept), OldestAt: time.UnixMilli(oldest)}, nil
}

var _ WindowStore = (*MemoryStore)(nil)
