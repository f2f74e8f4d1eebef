// Package devotp keeps plain OTPs by verification handle so a developer can read them back
// (GET /v1/dev/otp). Only wired when OTP_RETURN_TO_CLIENT is set outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain OTP by verification handle for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores otp for handle until expiresAt.
	Put(ctx context.Context, handle, otp string, expiresAt time.Time)
	// Get returns the otp for handle if present and not expired.
	Get(ctx context.Context, handle string) (otp string, ok bool)
	// Delete drops handle once it has been consumed or superseded.
	Delete(ctx context.Context, handle string)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores otp for handle until expiresAt.
func (s *MemoryStore) Put(_ context.Context, handle, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[handle] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for handle if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(_ context.Context, handle string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[handle]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, handle)
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}

// Delete removes handle.
func (s *MemoryStore) Delete(_ context.Context, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, handle)
}
