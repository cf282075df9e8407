package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/omniaweb/chatbot/conversation"
)

// MemoryStore implements SessionStore using in-process maps.
//
// Sessions are deep-copied through JSON on both Put and Get so callers
// never share mutable state with the store. Expired entries are
// dropped lazily on access.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	counters map[string]counterEntry
	now      func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

type counterEntry struct {
	n         int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		counters: make(map[string]counterEntry),
		now:      time.Now,
	}
}

// SetClock overrides the store's time source. Tests use this to
// advance time without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get implements SessionStore.
func (s *MemoryStore) Get(ctx context.Context, id string) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}

	var sess conversation.Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Put implements SessionStore.
func (s *MemoryStore) Put(ctx context.Context, id string, sess *conversation.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.sessions[id] = entry
	return nil
}

// Delete implements SessionStore.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Incr implements SessionStore.
func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.counters[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = counterEntry{n: 0, expiresAt: now.Add(ttl)}
	}
	entry.n++
	s.counters[key] = entry
	return entry.n, nil
}

// Close implements SessionStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]memoryEntry)
	s.counters = make(map[string]counterEntry)
	return nil
}
