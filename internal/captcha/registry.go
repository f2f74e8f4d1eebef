// Package captcha is the server half of the challenge widget: widgets are created per container,
// rendered into short-lived signed proofs, and each proof is accepted once.
package captcha

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/security"
)

// WidgetTTL bounds how long an abandoned widget is kept.
const WidgetTTL = time.Hour

var (
	// ErrContainerRequired is returned by Create without a container id.
	ErrContainerRequired = errors.New("captcha: container id is required")
	// ErrUnknownWidget is returned for widgets that were never created, were disposed or have aged out.
	ErrUnknownWidget = errors.New("captcha: unknown widget")
	// ErrCheckFailed is returned by Verify for any proof that is not acceptable.
	ErrCheckFailed = errors.New("captcha: check failed")
)

// Widget is a challenge widget bound to a UI container.
type Widget struct {
	ID          string
	ContainerID string
	Size        string
	CreatedAt   time.Time
}

// Store keeps widgets and spent proof ids.
type Store interface {
	PutWidget(ctx context.Context, w Widget, ttl time.Duration) error
	// GetWidget returns nil if the widget is missing.
	GetWidget(ctx context.Context, id string) (*Widget, error)
	DeleteWidget(ctx context.Context, id string) error
	// Spend marks jti used until ttl elapses. Returns false if it was already spent.
	Spend(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// Registry issues and checks challenge proofs.
type Registry struct {
	store  Store
	tokens *security.TokenProvider
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry returns a Registry whose proofs live for ttl.
func NewRegistry(store Store, tokens *security.TokenProvider, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, tokens: tokens, ttl: ttl, logger: logger, now: time.Now}
}

// Create registers a new widget for containerID.
func (r *Registry) Create(ctx context.Context, containerID, size string) (*Widget, error) {
	containerID = strings.TrimSpace(containerID)
	if containerID == "" {
		return nil, ErrContainerRequired
	}
	if size == "" {
		size = "invisible"
	}
	w := Widget{ID: uuid.New().String(), ContainerID: containerID, Size: size, CreatedAt: r.now().UTC()}
	if err := r.store.PutWidget(ctx, w, WidgetTTL); err != nil {
		return nil, err
	}
	r.logger.Debug("captcha widget created", zap.String("widget_id", w.ID), zap.String("container_id", containerID))
	return &w, nil
}

// Render issues a fresh proof for widgetID. Every render yields a distinct proof.
func (r *Registry) Render(ctx context.Context, widgetID string) (token string, expiresAt time.Time, err error) {
	w, err := r.store.GetWidget(ctx, widgetID)
	if err != nil {
		return "", time.Time{}, err
	}
	if w == nil {
		return "", time.Time{}, ErrUnknownWidget
	}
	token, _, expiresAt, err = r.tokens.IssueChallenge(w.ID, w.ContainerID, r.ttl)
	return token, expiresAt, err
}

// Verify accepts token once: it must be a valid proof for a live widget whose id has not been spent.
func (r *Registry) Verify(ctx context.Context, token string) error {
	claims, err := r.tokens.ValidateChallenge(token)
	if err != nil {
		return ErrCheckFailed
	}
	w, err := r.store.GetWidget(ctx, claims.WidgetID)
	if err != nil {
		return err
	}
	if w == nil || w.ContainerID != claims.ContainerID {
		r.logger.Info("captcha proof for unknown widget", zap.String("widget_id", claims.WidgetID))
		return ErrCheckFailed
	}
	ttl := claims.ExpiresAt.Time.Sub(r.now())
	if ttl <= 0 {
		return ErrCheckFailed
	}
	first, err := r.store.Spend(ctx, claims.ID, ttl)
	if err != nil {
		return err
	}
	if !first {
		r.logger.Info("captcha proof replayed", zap.String("widget_id", claims.WidgetID))
		return ErrCheckFailed
	}
	return nil
}

// Dispose removes the widget. Unknown ids are not an error.
func (r *Registry) Dispose(ctx context.Context, widgetID string) error {
	return r.store.DeleteWidget(ctx, widgetID)
}
