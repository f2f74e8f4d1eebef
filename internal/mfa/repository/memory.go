package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rightvendors/portfolyze/internal/mfa/domain"
)

// MemoryRepository keeps verifications in process memory. Used when no database is configured and in tests.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]domain.Verification
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.Verification)}
}

func (r *MemoryRepository) Create(_ context.Context, v *domain.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[v.ID] = *v
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *MemoryRepository) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	v.Attempts++
	r.m[id] = v
	return v.Attempts, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *MemoryRepository) Consume(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return false, nil
	}
	delete(r.m, id)
	return true, nil
}

func (r *MemoryRepository) DeleteByPhone(_ context.Context, phone string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, v := range r.m {
		if v.Phone == phone {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, v := range r.m {
		if v.Expired(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
