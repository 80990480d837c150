package kv

import (
	"context"
	"sync"
	"time"

	"github.com/portalis-labs/keygate/ports"
)

type entry struct {
	value    string
	deadline time.Time
}

// MemoryKV is an in-process KV with lazy expiry. Used for tests and for
// single-node deployments without Redis.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryKV) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Set stores a value with an expiry. A non-positive TTL stores the value
// without one.
func (s *MemoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.deadline = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Get retrieves a value by key.
func (s *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || s.expired(e) {
		delete(s.data, key)
		return "", ports.ErrKeyNotFound
	}
	return e.value, nil
}

// GetDel retrieves and removes a value atomically.
func (s *MemoryKV) GetDel(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	delete(s.data, key)
	if !ok || s.expired(e) {
		return "", ports.ErrKeyNotFound
	}
	return e.value, nil
}

// Delete removes a key.
func (s *MemoryKV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryKV) expired(e entry) bool {
	return !e.deadline.IsZero() && s.now().After(e.deadline)
}
