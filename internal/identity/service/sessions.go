package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/audit"
	identitydomain "github.com/rightvendors/portfolyze/internal/identity/domain"
	"github.com/rightvendors/portfolyze/internal/phone"
	"github.com/rightvendors/portfolyze/internal/security"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
	telemetrydomain "github.com/rightvendors/portfolyze/internal/telemetry/domain"
)

// Refresh validates the refresh token, rotates it, and returns new tokens.
// Presenting a rotated-out token revokes every session of the user.
func (s *PhoneAuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sessionID, jti, userID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sess == nil || !sess.Active(now) || sess.UserID != userID {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != jti {
		if err := s.sessions.RevokeAllSessionsByUser(ctx, userID); err != nil {
			s.logger.Error("revoke sessions after refresh reuse", zap.String("user_id", userID), zap.Error(err))
		}
		s.logAudit(ctx, userID, audit.ActionRefreshReuse, audit.ResourceSession, sessionID)
		s.emit(ctx, telemetrydomain.EventRefreshReuse, userID, sessionID, "", "failure", nil)
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	ident, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrInvalidRefreshToken
	}

	_ = s.sessions.UpdateLastSeen(ctx, sessionID, now)
	newRefresh, newJti, _, err := s.tokens.IssueRefresh(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateRefreshToken(ctx, sessionID, newJti, security.HashRefreshToken(newRefresh)); err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, userID, ident.Phone)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, userID, audit.ActionTokenRefreshed, audit.ResourceSession, sessionID)
	s.emit(ctx, telemetrydomain.EventTokenRefreshed, userID, sessionID, phone.Mask(ident.Phone), "success", nil)
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		Identity:     ident,
	}, nil
}

// Logout revokes the session identified by the refresh token or by the access token in context.
// If refreshToken is non-empty, validates it and revokes that session.
// If refreshToken is empty and the auth middleware set session_id in context, revokes that session.
// Otherwise no-op.
func (s *PhoneAuthService) Logout(ctx context.Context, refreshToken string) error {
	var sessionID, userID string
	if refreshToken != "" {
		sid, _, uid, err := s.tokens.ValidateRefresh(refreshToken)
		if err != nil {
			return nil
		}
		sessionID, userID = sid, uid
	} else {
		sid, ok := interceptors.GetSessionID(ctx)
		if !ok {
			return nil
		}
		sessionID = sid
		userID, _ = interceptors.GetUserID(ctx)
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.logAudit(ctx, userID, audit.ActionLogout, audit.ResourceSession, sessionID)
	s.emit(ctx, telemetrydomain.EventSignedOut, userID, sessionID, "", "success", nil)
	return nil
}

// Me returns the identity of the caller authenticated by the auth middleware.
func (s *PhoneAuthService) Me(ctx context.Context) (*identitydomain.Identity, error) {
	userID, sessionID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ident, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrUnauthenticated
	}
	_ = s.sessions.UpdateLastSeen(ctx, sessionID, s.now())
	return ident, nil
}

// UpdateDisplayName sets the caller's display name. Leading and trailing spaces are dropped; an empty
// name clears it.
func (s *PhoneAuthService) UpdateDisplayName(ctx context.Context, name string) (*identitydomain.Identity, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > identitydomain.MaxDisplayNameLength {
		return nil, ErrInvalidDisplayName
	}
	ident, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrUnauthenticated
	}
	now := s.now()
	if err := s.identities.UpdateDisplayName(ctx, userID, name, now); err != nil {
		return nil, err
	}
	ident.DisplayName = name
	ident.UpdatedAt = now
	s.logAudit(ctx, userID, audit.ActionProfileUpdated, audit.ResourceIdentity, userID)
	s.emit(ctx, telemetrydomain.EventProfileUpdated, userID, "", "", "success", nil)
	return ident, nil
}

// caller returns the user and session set by the auth middleware, rejecting revoked or expired sessions.
func (s *PhoneAuthService) caller(ctx context.Context) (userID, sessionID string, err error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return "", "", ErrUnauthenticated
	}
	sessionID, ok = interceptors.GetSessionID(ctx)
	if !ok || sessionID == "" {
		return "", "", ErrUnauthenticated
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	if sess == nil || sess.UserID != userID || !sess.Active(s.now()) {
		return "", "", ErrUnauthenticated
	}
	return userID, sessionID, nil
}
