// Package remote implements auth.Provider against the Portfolyze HTTP API. The signed-in session
// is kept in a file so it survives restarts; it is restored on the first subscription.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/auth"
)

const (
	defaultTimeout = 15 * time.Second
	restoreTimeout = 10 * time.Second
	// refreshSkew renews access tokens this long before they expire.
	refreshSkew = 30 * time.Second
)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithSessionFile persists the session at path. Without it the session lives in memory only.
func WithSessionFile(path string) Option {
	return func(p *Provider) { p.sessionFile = path }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

type widgetState struct {
	opts  auth.WidgetOptions
	timer *time.Timer
}

// Provider talks to the /v1 API. It is safe for concurrent use.
type Provider struct {
	baseURL     string
	client      *http.Client
	sessionFile string
	logger      *zap.Logger
	now         func() time.Time

	restoreOnce sync.Once
	refreshMu   sync.Mutex

	mu      sync.Mutex
	widgets map[auth.WidgetRef]*widgetState
	session *storedSession
	known   bool
	subs    map[int]func(*auth.ProviderIdentity)
	nextSub int
}

// New returns a Provider for the server at baseURL (e.g. http://localhost:8081).
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		now:     time.Now,
		widgets: make(map[auth.WidgetRef]*widgetState),
		subs:    make(map[int]func(*auth.ProviderIdentity)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) CreateChallengeWidget(ctx context.Context, containerID string, opts auth.WidgetOptions) (auth.WidgetRef, error) {
	size := opts.Size
	if size == "" {
		size = auth.WidgetSizeInvisible
	}
	var out api.CreateChallengeResponse
	err := p.do(ctx, http.MethodPost, "/challenges", "", api.CreateChallengeRequest{ContainerID: containerID, Size: string(size)}, &out)
	if err != nil {
		return "", err
	}
	ref := auth.WidgetRef(out.WidgetID)
	p.mu.Lock()
	p.widgets[ref] = &widgetState{opts: opts}
	p.mu.Unlock()
	return ref, nil
}

// RenderWidget fetches a fresh proof. The widget's OnExpired fires when the proof times out.
func (p *Provider) RenderWidget(ctx context.Context, ref auth.WidgetRef) (auth.WidgetToken, error) {
	var out api.RenderChallengeResponse
	if err := p.do(ctx, http.MethodPost, "/challenges/"+url.PathEscape(string(ref))+"/render", "", nil, &out); err != nil {
		return auth.WidgetToken{}, err
	}
	p.armExpiry(ref, out.ExpiresAt)
	return auth.WidgetToken{Value: out.Token, ExpiresAt: out.ExpiresAt}, nil
}

func (p *Provider) armExpiry(ref auth.WidgetRef, expiresAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.widgets[ref]
	if !ok || w.opts.OnExpired == nil {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	onExpired := w.opts.OnExpired
	w.timer = time.AfterFunc(max(expiresAt.Sub(p.now()), 0), func() {
		p.mu.Lock()
		live := p.widgets[ref] == w
		p.mu.Unlock()
		if live {
			onExpired()
		}
	})
}

// DisposeWidget forgets the widget locally, then deletes it on the server.
func (p *Provider) DisposeWidget(ctx context.Context, ref auth.WidgetRef) error {
	p.mu.Lock()
	if w, ok := p.widgets[ref]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(p.widgets, ref)
	}
	p.mu.Unlock()
	return p.do(ctx, http.MethodDelete, "/challenges/"+url.PathEscape(string(ref)), "", nil, nil)
}

func (p *Provider) RequestVerificationCode(ctx context.Context, formattedPhone string, token auth.WidgetToken) (auth.ConfirmationHandle, error) {
	var out api.SendCodeResponse
	err := p.do(ctx, http.MethodPost, "/verifications", "", api.SendCodeRequest{PhoneNumber: formattedPhone, ChallengeToken: token.Value}, &out)
	if err != nil {
		return "", err
	}
	return auth.ConfirmationHandle(out.Handle), nil
}

// ConfirmVerificationCode signs in on success and notifies subscribers.
func (p *Provider) ConfirmVerificationCode(ctx context.Context, handle auth.ConfirmationHandle, code string) (auth.ProviderIdentity, error) {
	var out api.AuthResponse
	if err := p.do(ctx, http.MethodPost, "/verifications/confirm", "", api.ConfirmCodeRequest{Handle: string(handle), Code: code}, &out); err != nil {
		return auth.ProviderIdentity{}, err
	}
	s := sessionFromAuth(&out)
	p.apply(s, false)
	return *s.provider(), nil
}

// UpdateDisplayName sets the name of the signed-in identity.
func (p *Provider) UpdateDisplayName(ctx context.Context, identity auth.ProviderIdentity, name string) error {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil || s.Identity.UID != identity.UID {
		return &auth.ProviderError{Code: auth.CodeUserTokenExpired, Message: "not signed in as " + identity.UID}
	}
	var out api.Identity
	if err := p.authed(ctx, http.MethodPatch, "/me", api.UpdateProfileRequest{DisplayName: name}, &out); err != nil {
		return err
	}
	p.mu.Lock()
	cur := p.session
	p.mu.Unlock()
	if cur != nil && cur.Identity.UID == out.UID {
		next := *cur
		next.Identity = identityFromAPI(out)
		p.apply(&next, false)
	}
	return nil
}

// SubscribeToSessionChanges registers cb. The first subscription restores the stored session in the
// background; cb is called once the state is known and on every change after that.
func (p *Provider) SubscribeToSessionChanges(cb func(*auth.ProviderIdentity)) func() {
	p.mu.Lock()
	key := p.nextSub
	p.nextSub++
	p.subs[key] = cb
	known := p.known
	cur := p.session.provider()
	p.mu.Unlock()

	if known {
		cb(cur)
	} else {
		p.restoreOnce.Do(func() { go p.restore() })
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, key)
	}
}

// SignOut revokes the session on the server and clears it locally. The local session is cleared
// even when the server call fails.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	var err error
	if s != nil {
		err = p.do(ctx, http.MethodPost, "/sessions/logout", "", api.RefreshRequest{RefreshToken: s.RefreshToken}, nil)
	}
	p.apply(nil, false)
	if err != nil {
		p.logger.Warn("server sign-out failed; local session cleared", zap.Error(err))
	}
	return err
}

// Close stops pending widget expiry timers.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.widgets {
		if w.timer != nil {
			w.timer.Stop()
		}
	}
}

func (p *Provider) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	stored, err := loadSession(p.sessionFile)
	if err != nil {
		p.logger.Warn("unreadable session file", zap.String("path", p.sessionFile), zap.Error(err))
	}
	if stored == nil || stored.RefreshToken == "" {
		p.apply(nil, true)
		return
	}
	next, err := p.exchange(ctx, stored.RefreshToken)
	switch {
	case err == nil:
		p.apply(next, true)
	case unauthorized(err):
		p.logger.Info("stored session rejected", zap.Error(err))
		p.apply(nil, true)
	default:
		// Server unavailable: stay signed in with the stored identity and refresh on the next call.
		p.logger.Warn("session restore offline", zap.Error(err))
		stored.AccessToken = ""
		p.apply(stored, true)
	}
}

// apply replaces the session, persists it and notifies subscribers when the identity changed or
// the state was not known yet. With onlyIfUnknown, a state set meanwhile (e.g. a sign-in racing
// the restore) wins.
func (p *Provider) apply(s *storedSession, onlyIfUnknown bool) {
	p.mu.Lock()
	if onlyIfUnknown && p.known {
		p.mu.Unlock()
		return
	}
	notify := !p.known || !sameIdentity(p.session.provider(), s.provider())
	p.session = s
	p.known = true
	subs := make([]func(*auth.ProviderIdentity), 0, len(p.subs))
	for _, cb := range p.subs {
		subs = append(subs, cb)
	}
	p.mu.Unlock()

	if err := saveSession(p.sessionFile, s); err != nil {
		p.logger.Warn("persist session", zap.String("path", p.sessionFile), zap.Error(err))
	}
	if !notify {
		return
	}
	for _, cb := range subs {
		cb(s.provider())
	}
}

func sameIdentity(a, b *auth.ProviderIdentity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// accessToken returns a usable access token, refreshing it when it is about to expire.
func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return "", &auth.ProviderError{Code: auth.CodeUserTokenExpired, Message: "not signed in"}
	}
	if s.AccessToken != "" && p.now().Add(refreshSkew).Before(s.AccessExpiresAt) {
		return s.AccessToken, nil
	}
	next, err := p.refresh(ctx, s)
	if err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

// refresh rotates the refresh token of stale. Calls are serialized: a rotated-out refresh token
// presented twice makes the server revoke every session of the user.
func (p *Provider) refresh(ctx context.Context, stale *storedSession) (*storedSession, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	p.mu.Lock()
	cur := p.session
	p.mu.Unlock()
	if cur == nil {
		return nil, &auth.ProviderError{Code: auth.CodeUserTokenExpired, Message: "not signed in"}
	}
	if cur != stale {
		return cur, nil
	}
	next, err := p.exchange(ctx, cur.RefreshToken)
	if err != nil {
		if unauthorized(err) {
			p.apply(nil, false)
		}
		return nil, err
	}
	p.apply(next, false)
	return next, nil
}

func (p *Provider) exchange(ctx context.Context, refreshToken string) (*storedSession, error) {
	var out api.AuthResponse
	if err := p.do(ctx, http.MethodPost, "/sessions/refresh", "", api.RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	return sessionFromAuth(&out), nil
}

// authed performs an authenticated call, refreshing and retrying once on 401.
func (p *Provider) authed(ctx context.Context, method, path string, in, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	err = p.do(ctx, method, path, token, in, out)
	if !unauthorized(err) {
		return err
	}
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return err
	}
	next, rerr := p.refresh(ctx, s)
	if rerr != nil {
		return rerr
	}
	return p.do(ctx, method, path, next.AccessToken, in, out)
}

// statusError carries the HTTP status next to the provider error decoded from the body.
type statusError struct {
	status int
	err    *auth.ProviderError
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func unauthorized(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusUnauthorized
}

func (p *Provider) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+api.Prefix+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return &statusError{status: resp.StatusCode, err: decodeError(resp)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *auth.ProviderError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e api.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Code != "" {
		return &auth.ProviderError{Code: e.Error.Code, Message: e.Error.Message}
	}
	return &auth.ProviderError{Code: auth.CodeInternalError, Message: fmt.Sprintf("status=%d", resp.StatusCode)}
}

var _ auth.Provider = (*Provider)(nil)
