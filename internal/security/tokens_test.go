package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAccessAndRefresh(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	sessionID, userID := "s1", "u1"

	access, accessJti, exp, err := p.IssueAccess(sessionID, userID, "+919876543210")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" || accessJti == "" {
		t.Fatal("access token or jti empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	refresh, jti, _, err := p.IssueRefresh(sessionID, userID)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	sid, jti2, uid, err := p.ValidateRefresh(refresh)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if sid != sessionID || jti2 != jti || uid != userID {
		t.Errorf("ValidateRefresh: got sessionID=%q jti=%q userID=%q", sid, jti2, uid)
	}

	sid, uid, err = p.ValidateAccess(access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if sid != sessionID || uid != userID {
		t.Errorf("ValidateAccess: got sessionID=%q userID=%q", sid, uid)
	}
}

func TestTokenProvider_KindsAreNotInterchangeable(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	access, _, _, _ := p.IssueAccess("s1", "u1", "")
	refresh, _, _, _ := p.IssueRefresh("s1", "u1")
	challenge, _, _, _ := p.IssueChallenge("w1", "c1", time.Minute)

	if _, _, _, err := p.ValidateRefresh(access); err != ErrInvalidToken {
		t.Errorf("access accepted as refresh: %v", err)
	}
	if _, _, err := p.ValidateAccess(refresh); err != ErrInvalidToken {
		t.Errorf("refresh accepted as access: %v", err)
	}
	if _, err := p.ValidateChallenge(access); err != ErrInvalidToken {
		t.Errorf("access accepted as challenge: %v", err)
	}
	if _, _, err := p.ValidateAccess(challenge); err != ErrInvalidToken {
		t.Errorf("challenge accepted as access: %v", err)
	}
}

func TestTokenProvider_Challenge(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	tok, jti, exp, err := p.IssueChallenge("w1", "sign-in", 2*time.Minute)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if time.Until(exp) > 2*time.Minute || time.Until(exp) < time.Minute {
		t.Errorf("expiry %v not about 2m away", exp)
	}
	c, err := p.ValidateChallenge(tok)
	if err != nil {
		t.Fatalf("ValidateChallenge: %v", err)
	}
	if c.WidgetID != "w1" || c.ContainerID != "sign-in" || c.ID != jti {
		t.Errorf("claims = %+v", c)
	}

	expired, _, _, _ := p.IssueChallenge("w1", "sign-in", -time.Minute)
	if _, err := p.ValidateChallenge(expired); err != ErrInvalidToken {
		t.Errorf("expired challenge: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_RejectsOtherIssuerAndGarbage(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	other := NewTokenProvider(p.privateKey, p.publicKey, "someone-else", "test-audience", time.Minute, time.Minute)
	tok, _, _, _ := other.IssueAccess("s1", "u1", "")
	if _, _, err := p.ValidateAccess(tok); err != ErrInvalidToken {
		t.Errorf("foreign issuer accepted: %v", err)
	}
	if _, _, _, err := p.ValidateRefresh("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateRefresh invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ExpiredAccess(t *testing.T) {
	p, err := NewTestTokenProviderTTL(-time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTestTokenProviderTTL: %v", err)
	}
	tok, _, _, _ := p.IssueAccess("s1", "u1", "")
	if _, _, err := p.ValidateAccess(tok); err != ErrInvalidToken {
		t.Errorf("expired access accepted: %v", err)
	}
}
