package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/authtest"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
	"github.com/rightvendors/portfolyze/internal/auth/challenge"
)

const container = "sign-in"

func setup(t *testing.T) (*authtest.Provider, *challenge.Manager, *Client) {
	t.Helper()
	p := authtest.NewProvider()
	return p, challenge.NewManager(p), NewClient(p, "", nil)
}

func TestRequestCode_FormatsWithCountryPrefix(t *testing.T) {
	p, m, c := setup(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	handle, err := c.RequestCode(ctx, "9876543210", h)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, []string{"+919876543210"}, p.RequestedPhones())
}

func TestRequestCode_RejectsMalformedNumberWithoutProviderCall(t *testing.T) {
	p, m, c := setup(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	_, err = c.RequestCode(ctx, "98765", h)
	assert.Equal(t, autherr.InvalidPhoneFormat, autherr.KindOf(err))
	assert.Equal(t, 0, p.Stats().Requests)

	_, err = h.TakeProof()
	assert.NoError(t, err, "proof must not be spent by a rejected number")
}

func TestRequestCode_SpentProofIsChallengeUnavailable(t *testing.T) {
	_, m, c := setup(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	_, err = c.RequestCode(ctx, "9876543210", h)
	require.NoError(t, err)

	_, err = c.RequestCode(ctx, "9876543210", h)
	assert.Equal(t, autherr.ChallengeUnavailable, autherr.KindOf(err))
}

func TestRequestCode_ClassifiesProviderErrors(t *testing.T) {
	p, m, c := setup(t)
	ctx := context.Background()
	p.FailRequest(authtest.ProviderError(auth.CodeTooManyRequests))

	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	_, err = c.RequestCode(ctx, "9876543210", h)
	assert.Equal(t, autherr.RateLimited, autherr.KindOf(err))

	p.FailRequest(errors.New("dial tcp: connection refused"))
	h, err = m.Acquire(ctx, container)
	require.NoError(t, err)
	_, err = c.RequestCode(ctx, "9876543210", h)
	assert.Equal(t, autherr.Unknown, autherr.KindOf(err))
}

func TestConfirmCode(t *testing.T) {
	p, m, c := setup(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	handle, err := c.RequestCode(ctx, "9876543210", h)
	require.NoError(t, err)

	_, err = c.ConfirmCode(ctx, handle, "000111")
	assert.Equal(t, autherr.InvalidCode, autherr.KindOf(err))

	_, err = c.ConfirmCode(ctx, handle, "12ab56")
	assert.Equal(t, autherr.InvalidCode, autherr.KindOf(err))
	assert.Equal(t, 1, p.Stats().Confirms, "malformed code must not reach the provider")

	id, err := c.ConfirmCode(ctx, handle, authtest.DefaultCode)
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", id.PhoneNumber)
	assert.NotEmpty(t, id.UID)

	_, err = c.ConfirmCode(ctx, handle, authtest.DefaultCode)
	assert.Equal(t, autherr.CodeExpired, autherr.KindOf(err))
}

func TestConfirmCode_StaleHandleAfterResend(t *testing.T) {
	_, m, c := setup(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	old, err := c.RequestCode(ctx, "9876543210", h)
	require.NoError(t, err)

	h, err = m.Acquire(ctx, container)
	require.NoError(t, err)
	fresh, err := c.RequestCode(ctx, "9876543210", h)
	require.NoError(t, err)
	require.NotEqual(t, old, fresh)

	_, err = c.ConfirmCode(ctx, old, authtest.DefaultCode)
	assert.Equal(t, autherr.CodeExpired, autherr.KindOf(err))

	_, err = c.ConfirmCode(ctx, "", authtest.DefaultCode)
	assert.ErrorIs(t, err, ErrEmptyHandle)
}

func TestEnrollDisplayName(t *testing.T) {
	p, _, c := setup(t)
	ctx := context.Background()
	id := auth.UserIdentity{UID: "uid-1", PhoneNumber: "+919876543210"}

	require.NoError(t, c.EnrollDisplayName(ctx, id, "  Asha Rao "))
	require.NoError(t, c.EnrollDisplayName(ctx, id, "   "))
	calls := p.DisplayNameCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Asha Rao", calls[0].Name)

	p.FailUpdate(errors.New("profile service down"))
	assert.Error(t, c.EnrollDisplayName(ctx, id, "Asha Rao"))
}
