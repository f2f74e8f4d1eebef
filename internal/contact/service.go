package contact

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/audit"
	"github.com/rightvendors/portfolyze/internal/contact/domain"
	"github.com/rightvendors/portfolyze/internal/contact/repository"
	"github.com/rightvendors/portfolyze/internal/telemetry"
	telemetrydomain "github.com/rightvendors/portfolyze/internal/telemetry/domain"
)

// ErrInvalidMessage wraps field validation failures.
var ErrInvalidMessage = errors.New("invalid contact message")

// ValidationError carries the per-field messages of a rejected submission.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidMessage }

func (e *ValidationError) Unwrap() error { return e.Err }

// Service stores contact messages and relays them when a relay is configured.
type Service struct {
	repo      repository.Repository
	relay     Relay
	audit     audit.AuditLogger
	telemetry telemetry.EventEmitter
	logger    *zap.Logger
}

// NewService returns a contact Service. relay, auditLogger and emitter may be nil.
func NewService(repo repository.Repository, relay Relay, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, relay: relay, audit: auditLogger, telemetry: emitter, logger: logger}
}

// Submit validates and stores m. Relay failures are logged; the message is kept either way.
func (s *Service) Submit(ctx context.Context, m *domain.Message) error {
	m.Normalize()
	if err := m.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now().UTC()
	m.Relayed = false
	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}

	switch err := s.send(ctx, m); {
	case err == nil:
		m.Relayed = true
		if err := s.repo.MarkRelayed(ctx, m.ID); err != nil {
			s.logger.Warn("contact: mark relayed failed", zap.String("id", m.ID), zap.Error(err))
		}
	case errors.Is(err, ErrRelayNotConfigured):
		s.logger.Info("contact message received (relay not configured)",
			zap.String("id", m.ID), zap.String("from", m.Name), zap.Int("length", len(m.Message)))
	default:
		s.logger.Warn("contact: relay failed", zap.String("id", m.ID), zap.Error(err))
	}

	if s.audit != nil {
		s.audit.LogEvent(ctx, "", audit.ActionContactSubmitted, audit.ResourceContact, m.ID)
	}
	if s.telemetry != nil {
		outcome := "success"
		if !m.Relayed {
			outcome = "stored"
		}
		telemetry.EmitAsync(s.telemetry, &telemetrydomain.AuthEvent{
			EventType: telemetrydomain.EventContactReceived,
			Source:    "contact",
			Outcome:   outcome,
		}, s.logger)
	}
	return nil
}

func (s *Service) send(ctx context.Context, m *domain.Message) error {
	if s.relay == nil {
		return ErrRelayNotConfigured
	}
	return s.relay.Send(ctx, m)
}
