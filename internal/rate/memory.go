package rate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int64
	expires time.Time
}

// MemoryStore is the in-process backend for single-instance deployments.
// Mutation happens under a mutex so concurrent requests against the same
// key observe read-modify-write atomically; the effective limit is
// per-instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || !entry.expires.After(now) {
		entry = memoryEntry{count: 0, expires: now.Add(ttl)}
	}
	entry.count++
	s.entries[key] = entry
	s.pruneLocked(now)

	return entry.count, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.expires.After(s.now()) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryStore) SetBlock(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{count: 1, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Blocked(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	return ok && entry.expires.After(s.now()), nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// pruneLocked drops expired entries opportunistically so the map does not
// grow without bound between windows.
func (s *MemoryStore) pruneLocked(now time.Time) {
	if len(s.entries) < 4096 {
		return
	}
	for key, entry := range s.entries {
		if !entry.expires.After(now) {
			delete(s.entries, key)
		}
	}
}
