// Package verification asks the provider to dispatch and confirm phone verification codes.
package verification

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
	"github.com/rightvendors/portfolyze/internal/phone"
)

// ErrEmptyHandle is returned when ConfirmCode is called without a confirmation handle.
var ErrEmptyHandle = errors.New("verification: confirmation handle is empty")

// ProofSource yields a single-use challenge proof. *challenge.Handle satisfies it.
type ProofSource interface {
	TakeProof() (auth.WidgetToken, error)
}

// Client wraps the provider's code dispatch and confirmation calls and classifies their failures.
type Client struct {
	provider  auth.Provider
	formatter phone.Formatter
	logger    *zap.Logger
}

// NewClient returns a Client that formats numbers for region (empty means phone.DefaultRegion).
func NewClient(provider auth.Provider, region string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider:  provider,
		formatter: phone.NewFormatter(region),
		logger:    logger,
	}
}

// FormatPhone returns the E.164 form of a domestic number.
func (c *Client) FormatPhone(national string) (string, error) {
	e164, err := c.formatter.E164(national)
	if err != nil {
		return "", autherr.New(autherr.InvalidPhoneFormat, err)
	}
	return e164, nil
}

// RequestCode formats the number with its country prefix, spends the widget's proof and asks the
// provider to send a code. Errors are *autherr.Error.
func (c *Client) RequestCode(ctx context.Context, national string, proof ProofSource) (auth.ConfirmationHandle, error) {
	e164, err := c.FormatPhone(national)
	if err != nil {
		return "", err
	}
	tok, err := proof.TakeProof()
	if err != nil {
		return "", autherr.Classify(err)
	}
	handle, err := c.provider.RequestVerificationCode(ctx, e164, tok)
	if err != nil {
		ce := autherr.Classify(err)
		c.logger.Info("verification code request failed",
			zap.String("phone", phone.Mask(e164)), zap.Stringer("kind", ce.Kind), zap.Error(err))
		return "", ce
	}
	c.logger.Debug("verification code requested", zap.String("phone", phone.Mask(e164)))
	return handle, nil
}

// ConfirmCode exchanges a handle and the user's code for the signed-in identity.
func (c *Client) ConfirmCode(ctx context.Context, handle auth.ConfirmationHandle, code string) (auth.UserIdentity, error) {
	if handle == "" {
		return auth.UserIdentity{}, autherr.New(autherr.CodeExpired, ErrEmptyHandle)
	}
	if err := phone.ValidateCode(code); err != nil {
		return auth.UserIdentity{}, autherr.New(autherr.InvalidCode, err)
	}
	pid, err := c.provider.ConfirmVerificationCode(ctx, handle, code)
	if err != nil {
		ce := autherr.Classify(err)
		c.logger.Info("verification code confirm failed", zap.Stringer("kind", ce.Kind), zap.Error(err))
		return auth.UserIdentity{}, ce
	}
	return auth.IdentityFromProvider(pid), nil
}

// EnrollDisplayName sets the display name of a newly signed-up identity. Failures are logged and
// returned for the caller's information only; they never undo authentication.
func (c *Client) EnrollDisplayName(ctx context.Context, identity auth.UserIdentity, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if err := c.provider.UpdateDisplayName(ctx, identity.ProviderIdentity(), name); err != nil {
		c.logger.Warn("display name enrollment failed", zap.String("uid", identity.UID), zap.Error(err))
		return err
	}
	return nil
}
