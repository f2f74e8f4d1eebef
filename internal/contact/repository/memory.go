package repository

import (
	"context"
	"sync"

	"github.com/rightvendors/portfolyze/internal/contact/domain"
)

// MemoryRepository keeps contact messages in process memory.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]domain.Message
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.Message)}
}

func (r *MemoryRepository) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[m.ID] = *m
	return nil
}

func (r *MemoryRepository) MarkRelayed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.m[id]; ok {
		m.Relayed = true
		r.m[id] = m
	}
	return nil
}

// Get returns a copy of the message stored under id.
func (r *MemoryRepository) Get(id string) (domain.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.m[id]
	return m, ok
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
