package repository

import (
	"context"

	"github.com/rightvendors/portfolyze/internal/contact/domain"
)

// Repository defines persistence for contact messages.
type Repository interface {
	Create(ctx context.Context, m *domain.Message) error
	MarkRelayed(ctx context.Context, id string) error
}
