package remote

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
	"github.com/rightvendors/portfolyze/internal/security"
	"github.com/rightvendors/portfolyze/internal/server/servertest"
)

const testPhone = "+919876543210"

// recorder collects session notifications.
type recorder struct {
	mu    sync.Mutex
	calls []*auth.ProviderIdentity
}

func (r *recorder) cb(id *auth.ProviderIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() *auth.ProviderIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func signIn(t *testing.T, s *servertest.Stack, p *Provider) auth.ProviderIdentity {
	t.Helper()
	ctx := context.Background()
	ref, err := p.CreateChallengeWidget(ctx, "recaptcha-container", auth.WidgetOptions{Size: auth.WidgetSizeInvisible})
	require.NoError(t, err)
	tok, err := p.RenderWidget(ctx, ref)
	require.NoError(t, err)
	handle, err := p.RequestVerificationCode(ctx, testPhone, tok)
	require.NoError(t, err)
	otp, ok := s.DevOTP.Get(ctx, string(handle))
	require.True(t, ok)
	id, err := p.ConfirmVerificationCode(ctx, handle, otp)
	require.NoError(t, err)
	require.NoError(t, p.DisposeWidget(ctx, ref))
	return id
}

func TestProvider_SignInPersistsAndRestores(t *testing.T) {
	s := servertest.New(t)
	file := filepath.Join(t.TempDir(), "portfolyze", "session.json")

	p := New(s.URL(), WithSessionFile(file))
	defer p.Close()
	rec := &recorder{}
	unsub := p.SubscribeToSessionChanges(rec.cb)
	defer unsub()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Nil(t, rec.last(), "no stored session")

	id := signIn(t, s, p)
	assert.Equal(t, testPhone, id.PhoneNumber)
	require.Equal(t, 2, rec.count())
	assert.Equal(t, id.UID, rec.last().UID)

	require.NoError(t, p.UpdateDisplayName(context.Background(), id, "Asha"))
	assert.Equal(t, "Asha", rec.last().DisplayName)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	before, err := loadSession(file)
	require.NoError(t, err)

	restored := New(s.URL(), WithSessionFile(file))
	defer restored.Close()
	rec2 := &recorder{}
	restored.SubscribeToSessionChanges(rec2.cb)
	require.Eventually(t, func() bool { return rec2.count() == 1 }, time.Second, 10*time.Millisecond)
	require.NotNil(t, rec2.last())
	assert.Equal(t, id.UID, rec2.last().UID)
	assert.Equal(t, "Asha", rec2.last().DisplayName)

	after, err := loadSession(file)
	require.NoError(t, err)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken, "restore rotates the refresh token")

	late := &recorder{}
	restored.SubscribeToSessionChanges(late.cb)
	require.Equal(t, 1, late.count(), "known state is delivered synchronously")
	assert.Equal(t, id.UID, late.last().UID)
}

func TestProvider_RejectedStoredSession(t *testing.T) {
	s := servertest.New(t)
	file := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, saveSession(file, &storedSession{
		RefreshToken: "revoked",
		Identity:     sessionIdentity{UID: "u1", PhoneNumber: testPhone},
	}))

	p := New(s.URL(), WithSessionFile(file))
	rec := &recorder{}
	p.SubscribeToSessionChanges(rec.cb)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Nil(t, rec.last())
	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestProvider_OfflineRestoreKeepsIdentity(t *testing.T) {
	file := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, saveSession(file, &storedSession{
		RefreshToken: "r",
		Identity:     sessionIdentity{UID: "u1", PhoneNumber: testPhone},
	}))

	p := New("http://127.0.0.1:1", WithSessionFile(file))
	rec := &recorder{}
	p.SubscribeToSessionChanges(rec.cb)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NotNil(t, rec.last())
	assert.Equal(t, "u1", rec.last().UID)
}

func TestProvider_SignOut(t *testing.T) {
	s := servertest.New(t)
	file := filepath.Join(t.TempDir(), "session.json")
	p := New(s.URL(), WithSessionFile(file))
	rec := &recorder{}
	p.SubscribeToSessionChanges(rec.cb)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

	id := signIn(t, s, p)
	require.NoError(t, p.SignOut(context.Background()))
	assert.Nil(t, rec.last())
	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))

	err = p.UpdateDisplayName(context.Background(), id, "x")
	assert.Equal(t, autherr.Unknown, autherr.KindOf(err))
	var pe *auth.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, auth.CodeUserTokenExpired, pe.Code)
}

func TestProvider_RefreshesStaleAccessToken(t *testing.T) {
	tp, err := security.NewTestTokenProviderTTL(10*time.Second, 24*time.Hour)
	require.NoError(t, err)
	s := servertest.NewWithTokens(t, tp)
	p := New(s.URL())
	p.SubscribeToSessionChanges(func(*auth.ProviderIdentity) {})

	id := signIn(t, s, p)
	p.mu.Lock()
	first := p.session.RefreshToken
	p.mu.Unlock()

	require.NoError(t, p.UpdateDisplayName(context.Background(), id, "Asha"))
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.NotEqual(t, first, p.session.RefreshToken)
	assert.Equal(t, "Asha", p.session.Identity.DisplayName)
}

func TestProvider_ErrorsCarryProviderCodes(t *testing.T) {
	s := servertest.New(t)
	p := New(s.URL())
	ctx := context.Background()

	_, err := p.RequestVerificationCode(ctx, testPhone, auth.WidgetToken{Value: "forged"})
	assert.Equal(t, autherr.ChallengeUnavailable, autherr.KindOf(err))

	_, err = p.ConfirmVerificationCode(ctx, "unknown", "123456")
	assert.Equal(t, autherr.CodeExpired, autherr.KindOf(err))

	_, err = p.CreateChallengeWidget(ctx, "", auth.WidgetOptions{})
	var pe *auth.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, auth.CodeMissingAppCredential, pe.Code)
}

func TestProvider_WidgetExpiry(t *testing.T) {
	s := servertest.New(t)
	p := New(s.URL())
	defer p.Close()
	ctx := context.Background()

	fired := make(chan struct{}, 2)
	ref, err := p.CreateChallengeWidget(ctx, "c1", auth.WidgetOptions{OnExpired: func() { fired <- struct{}{} }})
	require.NoError(t, err)
	p.armExpiry(ref, time.Now())
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnExpired not called")
	}

	p.armExpiry(ref, time.Now().Add(50*time.Millisecond))
	require.NoError(t, p.DisposeWidget(ctx, ref))
	select {
	case <-fired:
		t.Fatal("OnExpired called for a disposed widget")
	case <-time.After(150 * time.Millisecond):
	}
}
