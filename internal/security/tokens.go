package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, of the wrong kind or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
)

// Token kinds carried in the "typ" claim so one kind cannot be replayed as another.
const (
	KindAccess    = "access"
	KindRefresh   = "refresh"
	KindChallenge = "challenge"
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"typ"`
	SessionID string `json:"session_id"`
	Phone     string `json:"phone_number,omitempty"`
}

// RefreshClaims holds JWT claims for the refresh token (jti binds it to the session for rotation).
type RefreshClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"typ"`
	SessionID string `json:"session_id"`
}

// ChallengeClaims is the proof that a challenge widget was rendered. Its jti is spent on first use.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Kind        string `json:"typ"`
	WidgetID    string `json:"widget_id"`
	ContainerID string `json:"container_id"`
}

// TokenProvider issues and validates JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on every parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (p *TokenProvider) registered(subject string, ttl time.Duration) (jwt.RegisteredClaims, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return jwt.RegisteredClaims{}, time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}, expiresAt, nil
}

// IssueAccess issues a short-lived access JWT for the given session and user.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(sessionID, userID, phone string) (token, jti string, expiresAt time.Time, err error) {
	rc, expiresAt, err := p.registered(userID, p.accessTTL)
	if err != nil {
		return "", "", time.Time{}, err
	}
	token, err = p.sign(AccessClaims{RegisteredClaims: rc, Kind: KindAccess, SessionID: sessionID, Phone: phone})
	return token, rc.ID, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT and returns the token, its jti
// (for rotation binding), and expiration time. Caller should store jti on the session.
func (p *TokenProvider) IssueRefresh(sessionID, userID string) (token, jti string, expiresAt time.Time, err error) {
	rc, expiresAt, err := p.registered(userID, p.refreshTTL)
	if err != nil {
		return "", "", time.Time{}, err
	}
	token, err = p.sign(RefreshClaims{RegisteredClaims: rc, Kind: KindRefresh, SessionID: sessionID})
	return token, rc.ID, expiresAt, err
}

// IssueChallenge issues a challenge proof for a rendered widget, valid for ttl.
func (p *TokenProvider) IssueChallenge(widgetID, containerID string, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	rc, expiresAt, err := p.registered(widgetID, ttl)
	if err != nil {
		return "", "", time.Time{}, err
	}
	token, err = p.sign(ChallengeClaims{RegisteredClaims: rc, Kind: KindChallenge, WidgetID: widgetID, ContainerID: containerID})
	return token, rc.ID, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// parse verifies signature, exp, iss and aud and fills claims.
func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains(aud, p.audience) {
		return ErrInvalidToken
	}
	return nil
}

// ValidateRefresh parses and validates a refresh token. Returns sessionID, jti and userID.
func (p *TokenProvider) ValidateRefresh(tokenString string) (sessionID, jti, userID string, err error) {
	var c RefreshClaims
	if err := p.parse(tokenString, &c); err != nil || c.Kind != KindRefresh {
		return "", "", "", ErrInvalidToken
	}
	return c.SessionID, c.ID, c.Subject, nil
}

// ValidateAccess parses and validates an access token. Returns sessionID and userID.
func (p *TokenProvider) ValidateAccess(tokenString string) (sessionID, userID string, err error) {
	var c AccessClaims
	if err := p.parse(tokenString, &c); err != nil || c.Kind != KindAccess {
		return "", "", ErrInvalidToken
	}
	return c.SessionID, c.Subject, nil
}

// ValidateChallenge parses and validates a challenge proof. Single-use enforcement is the caller's job.
func (p *TokenProvider) ValidateChallenge(tokenString string) (*ChallengeClaims, error) {
	var c ChallengeClaims
	if err := p.parse(tokenString, &c); err != nil || c.Kind != KindChallenge || c.WidgetID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
