package repository

import (
	"context"
	"time"

	"github.com/rightvendors/portfolyze/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	// GetByID returns nil when the session does not exist.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllSessionsByUser(ctx context.Context, userID string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
}
