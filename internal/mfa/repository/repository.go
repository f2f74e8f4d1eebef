package repository

import (
	"context"
	"time"

	"github.com/rightvendors/portfolyze/internal/mfa/domain"
)

// Repository defines persistence for pending phone verifications.
type Repository interface {
	Create(ctx context.Context, v *domain.Verification) error
	// GetByID returns the verification for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Verification, error)
	// IncrementAttempts adds one failed attempt and returns the new count.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	// Consume deletes the verification and reports whether this call removed it. Of any number of
	// concurrent callers for one id, at most one gets true.
	Consume(ctx context.Context, id string) (bool, error)
	// DeleteByPhone removes every pending verification for phone and returns how many were removed.
	DeleteByPhone(ctx context.Context, phone string) (int64, error)
	// DeleteExpired removes verifications that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
