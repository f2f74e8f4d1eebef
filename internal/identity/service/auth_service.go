package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/audit"
	"github.com/rightvendors/portfolyze/internal/captcha"
	"github.com/rightvendors/portfolyze/internal/devotp"
	identitydomain "github.com/rightvendors/portfolyze/internal/identity/domain"
	identityrepo "github.com/rightvendors/portfolyze/internal/identity/repository"
	"github.com/rightvendors/portfolyze/internal/mfa"
	mfadomain "github.com/rightvendors/portfolyze/internal/mfa/domain"
	mfarepo "github.com/rightvendors/portfolyze/internal/mfa/repository"
	"github.com/rightvendors/portfolyze/internal/mfa/sms"
	"github.com/rightvendors/portfolyze/internal/phone"
	"github.com/rightvendors/portfolyze/internal/ratelimit"
	"github.com/rightvendors/portfolyze/internal/security"
	sessiondomain "github.com/rightvendors/portfolyze/internal/session/domain"
	sessionrepo "github.com/rightvendors/portfolyze/internal/session/repository"
	"github.com/rightvendors/portfolyze/internal/telemetry"
	telemetrydomain "github.com/rightvendors/portfolyze/internal/telemetry/domain"
)

// Sentinel errors for the phone auth service; the HTTP layer maps them to provider codes.
var (
	ErrMissingPhone        = errors.New("phone number is required")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrCaptchaCheckFailed  = errors.New("challenge check failed")
	ErrTooManyRequests     = errors.New("too many code requests")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrMissingCode         = errors.New("verification code is required")
	ErrSMSDelivery         = errors.New("code could not be delivered")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected; all sessions revoked")
	ErrUnauthenticated     = errors.New("not signed in")
	ErrInvalidDisplayName  = errors.New("invalid display name")
)

// ChallengeVerifier spends a challenge proof. captcha.Registry implements it.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token string) error
}

// Options tunes code lifetimes and limits.
type Options struct {
	OTPTTL      time.Duration
	MaxAttempts int
	// SendLimit codes may be requested per phone per SendWindow; a client IP gets ipLimitFactor times as many.
	SendLimit     int
	SendWindow    time.Duration
	RefreshTTL    time.Duration
	DefaultRegion string
}

const ipLimitFactor = 4

func (o Options) withDefaults() Options {
	if o.OTPTTL <= 0 {
		o.OTPTTL = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.SendLimit <= 0 {
		o.SendLimit = 5
	}
	if o.SendWindow <= 0 {
		o.SendWindow = time.Hour
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 720 * time.Hour
	}
	if o.DefaultRegion == "" {
		o.DefaultRegion = phone.DefaultRegion
	}
	return o
}

// Deps are the collaborators of PhoneAuthService. Limiter, SMS, DevOTP, Audit, Telemetry and Logger
// are optional.
type Deps struct {
	Verifications mfarepo.Repository
	Identities    identityrepo.Repository
	Sessions      sessionrepo.Repository
	Challenges    ChallengeVerifier
	Hasher        *security.Hasher
	Tokens        *security.TokenProvider

	Limiter ratelimit.Limiter
	SMS     sms.Sender
	// DevOTP, when set, receives codes instead of SMS.
	DevOTP    devotp.Store
	Audit     audit.AuditLogger
	Telemetry telemetry.EventEmitter
	Logger    *zap.Logger
}

// SendResult is returned by SendCode.
type SendResult struct {
	Handle    string
	ExpiresAt time.Time
}

// AuthResult holds the outcome of Confirm or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     *identitydomain.Identity
	// IsNew is true when Confirm created the identity.
	IsNew bool
}

// PhoneAuthService implements phone OTP sign-in, session refresh, logout and profile updates.
type PhoneAuthService struct {
	verifications mfarepo.Repository
	identities    identityrepo.Repository
	sessions      sessionrepo.Repository
	challenges    ChallengeVerifier
	hasher        *security.Hasher
	tokens        *security.TokenProvider
	limiter       ratelimit.Limiter
	sms           sms.Sender
	devOTP        devotp.Store
	audit         audit.AuditLogger
	telemetry     telemetry.EventEmitter
	logger        *zap.Logger
	opts          Options
	now           func() time.Time
}

// NewPhoneAuthService returns a PhoneAuthService with the given dependencies.
func NewPhoneAuthService(d Deps, opts Options) *PhoneAuthService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhoneAuthService{
		verifications: d.Verifications,
		identities:    d.Identities,
		sessions:      d.Sessions,
		challenges:    d.Challenges,
		hasher:        d.Hasher,
		tokens:        d.Tokens,
		limiter:       d.Limiter,
		sms:           d.SMS,
		devOTP:        d.DevOTP,
		audit:         d.Audit,
		telemetry:     d.Telemetry,
		logger:        logger,
		opts:          opts.withDefaults(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SendCode validates the phone number and challenge proof, enforces send limits, and delivers a
// fresh code. Earlier pending codes for the same phone stop working.
func (s *PhoneAuthService) SendCode(ctx context.Context, rawPhone, challengeToken, ip string) (*SendResult, error) {
	if strings.TrimSpace(rawPhone) == "" {
		return nil, ErrMissingPhone
	}
	e164, err := phone.NormalizeE164(rawPhone, s.opts.DefaultRegion)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	masked := phone.Mask(e164)

	if err := s.challenges.Verify(ctx, challengeToken); err != nil {
		if errors.Is(err, captcha.ErrCheckFailed) {
			s.emit(ctx, telemetrydomain.EventCodeSendFailed, "", "", masked, "failure", map[string]string{"reason": "challenge"})
			return nil, ErrCaptchaCheckFailed
		}
		return nil, err
	}

	if err := s.checkSendLimits(ctx, e164, ip); err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			s.emit(ctx, telemetrydomain.EventCodeSendFailed, "", "", masked, "failure", map[string]string{"reason": "rate_limited"})
		}
		return nil, err
	}

	if n, err := s.verifications.DeleteByPhone(ctx, e164); err != nil {
		return nil, err
	} else if n > 0 {
		s.logger.Debug("superseded pending verifications", zap.String("phone", masked), zap.Int64("count", n))
	}

	otp, err := mfa.GenerateOTP()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash([]byte(otp))
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := &mfadomain.Verification{
		ID:        uuid.New().String(),
		Phone:     e164,
		CodeHash:  hash,
		ClientIP:  ip,
		ExpiresAt: now.Add(s.opts.OTPTTL),
		CreatedAt: now,
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return nil, err
	}

	if err := s.deliver(ctx, v, otp); err != nil {
		_ = s.verifications.Delete(ctx, v.ID)
		s.logger.Warn("code delivery failed", zap.String("phone", masked), zap.Error(err))
		s.logAudit(ctx, "", audit.ActionCodeSendFailed, audit.ResourceVerification, masked)
		s.emit(ctx, telemetrydomain.EventCodeSendFailed, "", "", masked, "failure", map[string]string{"reason": "delivery"})
		return nil, fmt.Errorf("%w: %v", ErrSMSDelivery, err)
	}

	s.logAudit(ctx, "", audit.ActionCodeRequested, audit.ResourceVerification, masked)
	s.emit(ctx, telemetrydomain.EventCodeSent, "", "", masked, "success", nil)
	return &SendResult{Handle: v.ID, ExpiresAt: v.ExpiresAt}, nil
}

func (s *PhoneAuthService) checkSendLimits(ctx context.Context, e164, ip string) error {
	if s.limiter == nil {
		return nil
	}
	ok, _, err := s.limiter.Allow(ctx, "phone:"+e164, s.opts.SendLimit, s.opts.SendWindow)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTooManyRequests
	}
	if ip == "" {
		return nil
	}
	ok, _, err = s.limiter.Allow(ctx, "ip:"+ip, s.opts.SendLimit*ipLimitFactor, s.opts.SendWindow)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTooManyRequests
	}
	return nil
}

func (s *PhoneAuthService) deliver(ctx context.Context, v *mfadomain.Verification, otp string) error {
	if s.devOTP != nil {
		s.devOTP.Put(ctx, v.ID, otp, v.ExpiresAt)
		s.logger.Info("dev mode: code kept for /v1/dev/otp", zap.String("handle", v.ID))
		return nil
	}
	if s.sms == nil {
		return sms.ErrNotConfigured
	}
	return s.sms.SendOTP(ctx, v.Phone, otp)
}

// Confirm checks code against the pending verification identified by handle. On success the handle is
// consumed, the phone identity is found or created, and a new session with tokens is returned.
func (s *PhoneAuthService) Confirm(ctx context.Context, handle, code, ip string) (*AuthResult, error) {
	handle = strings.TrimSpace(handle)
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingCode
	}
	if handle == "" {
		return nil, ErrCodeExpired
	}
	v, err := s.verifications.GetByID(ctx, handle)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if v == nil || v.Expired(now) || v.Attempts >= s.opts.MaxAttempts {
		if v != nil {
			_ = s.verifications.Delete(ctx, v.ID)
		}
		s.dropDevOTP(ctx, handle)
		return nil, ErrCodeExpired
	}
	masked := phone.Mask(v.Phone)

	if err := s.hasher.Compare(v.CodeHash, []byte(code)); err != nil {
		attempts, incErr := s.verifications.IncrementAttempts(ctx, v.ID)
		if errors.Is(incErr, sql.ErrNoRows) {
			// Consumed, superseded or exhausted since it was read.
			return nil, ErrCodeExpired
		}
		if incErr != nil {
			return nil, incErr
		}
		if attempts >= s.opts.MaxAttempts {
			_ = s.verifications.Delete(ctx, v.ID)
			s.dropDevOTP(ctx, v.ID)
		}
		s.logAudit(ctx, "", audit.ActionSignInFailed, audit.ResourceVerification, masked)
		s.emit(ctx, telemetrydomain.EventSignInFailed, "", "", masked, "failure", map[string]string{"attempts": fmt.Sprint(attempts)})
		return nil, ErrInvalidCode
	}

	// Single use: only the caller that removes the row signs in. A concurrent confirm, or one that
	// lost to a resend, reports an expired code.
	consumed, err := s.verifications.Consume(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	s.dropDevOTP(ctx, v.ID)
	if !consumed {
		return nil, ErrCodeExpired
	}

	ident, isNew, err := s.findOrCreateIdentity(ctx, v.Phone, now)
	if err != nil {
		return nil, err
	}
	if err := s.identities.TouchSignIn(ctx, ident.ID, now); err != nil {
		s.logger.Warn("touch sign-in failed", zap.String("user_id", ident.ID), zap.Error(err))
	}
	ident.LastSignInAt = &now

	res, sessionID, err := s.createSession(ctx, ident, ip)
	if err != nil {
		return nil, err
	}
	res.IsNew = isNew
	if isNew {
		s.logAudit(ctx, ident.ID, audit.ActionIdentityCreated, audit.ResourceIdentity, ident.ID)
	}
	s.logAudit(ctx, ident.ID, audit.ActionSignIn, audit.ResourceSession, sessionID)
	s.emit(ctx, telemetrydomain.EventSignIn, ident.ID, sessionID, masked, "success", map[string]string{"new_identity": fmt.Sprint(isNew)})
	return res, nil
}

func (s *PhoneAuthService) findOrCreateIdentity(ctx context.Context, e164 string, now time.Time) (*identitydomain.Identity, bool, error) {
	existing, err := s.identities.GetByPhone(ctx, e164)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	ident := &identitydomain.Identity{
		ID:        uuid.New().String(),
		Phone:     e164,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ident.Validate(); err != nil {
		return nil, false, err
	}
	if err := s.identities.Create(ctx, ident); err != nil {
		if !errors.Is(err, identityrepo.ErrDuplicatePhone) {
			return nil, false, err
		}
		// Lost a race with a concurrent confirm for the same phone.
		existing, err = s.identities.GetByPhone(ctx, e164)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, identityrepo.ErrDuplicatePhone
		}
		return existing, false, nil
	}
	return ident, true, nil
}

func (s *PhoneAuthService) createSession(ctx context.Context, ident *identitydomain.Identity, ip string) (*AuthResult, string, error) {
	sessionID := uuid.New().String()
	now := s.now()
	refreshToken, jti, _, err := s.tokens.IssueRefresh(sessionID, ident.ID)
	if err != nil {
		return nil, "", err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, ident.ID, ident.Phone)
	if err != nil {
		return nil, "", err
	}
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           ident.ID,
		ExpiresAt:        now.Add(s.opts.RefreshTTL),
		IPAddress:        ip,
		RefreshJti:       jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, "", err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		Identity:     ident,
	}, sessionID, nil
}

func (s *PhoneAuthService) dropDevOTP(ctx context.Context, handle string) {
	if s.devOTP != nil {
		s.devOTP.Delete(ctx, handle)
	}
}

func (s *PhoneAuthService) logAudit(ctx context.Context, userID, action, resource, metadata string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, resource, metadata)
	}
}

func (s *PhoneAuthService) emit(ctx context.Context, eventType, userID, sessionID, maskedPhone, outcome string, meta map[string]string) {
	if s.telemetry == nil {
		return
	}
	ev := &telemetrydomain.AuthEvent{
		UserID:    userID,
		SessionID: sessionID,
		EventType: eventType,
		Source:    "auth_service",
		Phone:     maskedPhone,
		Outcome:   outcome,
		Metadata:  telemetrydomain.MetadataJSON(meta),
	}
	telemetry.EmitAsync(s.telemetry, ev, s.logger)
}
