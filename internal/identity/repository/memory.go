package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rightvendors/portfolyze/internal/identity/domain"
)

// MemoryRepository keeps identities in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Identity
	byPhone map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]domain.Identity), byPhone: make(map[string]string)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func (r *MemoryRepository) GetByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	r.mu.RLock()
	id, ok := r.byPhone[phone]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) Create(_ context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPhone[i.Phone]; ok {
		return ErrDuplicatePhone
	}
	r.byID[i.ID] = *i
	r.byPhone[i.Phone] = i.ID
	return nil
}

func (r *MemoryRepository) UpdateDisplayName(_ context.Context, id, displayName string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[id]; ok {
		i.DisplayName = displayName
		i.UpdatedAt = at
		r.byID[id] = i
	}
	return nil
}

func (r *MemoryRepository) TouchSignIn(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[id]; ok {
		i.LastSignInAt = &at
		r.byID[id] = i
	}
	return nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
