package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rightvendors/portfolyze/internal/identity/domain"
)

// ErrDuplicatePhone is returned by Create when the phone number already has an identity.
var ErrDuplicatePhone = errors.New("identity: phone number already registered")

// Repository defines persistence for identities.
type Repository interface {
	// GetByID and GetByPhone return nil when the identity does not exist.
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	UpdateDisplayName(ctx context.Context, id, displayName string, at time.Time) error
	TouchSignIn(ctx context.Context, id string, at time.Time) error
}
