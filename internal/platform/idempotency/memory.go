package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It backs the memory store driver and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.entries[id]; ok && now.Before(existing.ExpiresAt) {
		outcome, err := classify(existing, fingerprint)
		return outcome, existing, err
	}
	entry := newClaim(key, fingerprint, now, ttl)
	s.entries[id] = entry
	return OutcomeClaimed, entry, nil
}

// Finish implements Store.
func (s *MemoryStore) Finish(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(entry.Key)
	if existing, ok := s.entries[id]; ok && existing.Fingerprint != entry.Fingerprint {
		return ErrKeyReused
	}
	entry.Finished = true
	entry.Body = append([]byte(nil), entry.Body...)
	s.entries[id] = entry
	return nil
}

// Abandon implements Store.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, documentID(key))
	s.mu.Unlock()
	return nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if now.Before(entry.ExpiresAt) {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed, nil
}
