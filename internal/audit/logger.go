// Package audit records who did what to which auth resource.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/audit/domain"
	auditrepo "github.com/rightvendors/portfolyze/internal/audit/repository"
)

// Actions written by the phone auth service.
const (
	ActionCodeRequested    = "code_requested"
	ActionCodeSendFailed   = "code_send_failed"
	ActionSignIn           = "sign_in"
	ActionSignInFailed     = "sign_in_failed"
	ActionIdentityCreated  = "identity_created"
	ActionTokenRefreshed   = "token_refreshed"
	ActionRefreshReuse     = "refresh_reuse_detected"
	ActionLogout           = "logout"
	ActionProfileUpdated   = "profile_updated"
	ActionContactSubmitted = "contact_submitted"
)

// Resources audited.
const (
	ResourceVerification = "verification"
	ResourceSession      = "session"
	ResourceIdentity     = "identity"
	ResourceContact      = "contact"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := ""
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to log event",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}
