// Package auth holds the types shared by the phone sign-in core: the provider contract consumed by
// the challenge manager, the verification client and the session service, and the UserIdentity
// snapshot published to the rest of the application.
package auth

import (
	"context"
	"fmt"
	"time"
)

// WidgetRef identifies a challenge widget instance created by the provider.
type WidgetRef string

// WidgetSize selects how the challenge widget is presented.
type WidgetSize string

const (
	WidgetSizeInvisible WidgetSize = "invisible"
	WidgetSizeNormal    WidgetSize = "normal"
)

// WidgetOptions configures a challenge widget at creation time.
type WidgetOptions struct {
	Size WidgetSize
	// OnExpired is invoked by the provider when a rendered token is no longer accepted.
	// It may be called from any goroutine.
	OnExpired func()
}

// WidgetToken is the challenge proof produced by rendering a widget. Tokens are single use.
type WidgetToken struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token can no longer be presented at now.
func (t WidgetToken) Expired(now time.Time) bool {
	return t.Value == "" || (!t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt))
}

// ConfirmationHandle is the opaque token returned after a code request. It is required to confirm
// the code later.
type ConfirmationHandle string

// ProviderIdentity is the provider's view of a signed-in user.
type ProviderIdentity struct {
	UID         string
	PhoneNumber string
	DisplayName string
}

// Provider is the phone-verification vendor contract. Implementations must be safe for concurrent use.
type Provider interface {
	CreateChallengeWidget(ctx context.Context, containerID string, opts WidgetOptions) (WidgetRef, error)
	RenderWidget(ctx context.Context, ref WidgetRef) (WidgetToken, error)
	DisposeWidget(ctx context.Context, ref WidgetRef) error

	RequestVerificationCode(ctx context.Context, formattedPhone string, token WidgetToken) (ConfirmationHandle, error)
	ConfirmVerificationCode(ctx context.Context, handle ConfirmationHandle, code string) (ProviderIdentity, error)
	UpdateDisplayName(ctx context.Context, identity ProviderIdentity, name string) error

	// SubscribeToSessionChanges registers cb for session changes. cb receives nil when signed out.
	// The provider delivers the current state to a new subscriber once it is known.
	SubscribeToSessionChanges(cb func(*ProviderIdentity)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Provider error codes. They follow the vendor's "auth/<reason>" convention.
const (
	CodeInvalidPhoneNumber      = "auth/invalid-phone-number"
	CodeMissingPhoneNumber      = "auth/missing-phone-number"
	CodeCaptchaCheckFailed      = "auth/captcha-check-failed"
	CodeMissingAppCredential    = "auth/missing-app-credential"
	CodeTooManyRequests         = "auth/too-many-requests"
	CodeQuotaExceeded           = "auth/quota-exceeded"
	CodeInvalidVerificationCode = "auth/invalid-verification-code"
	CodeMissingVerificationCode = "auth/missing-verification-code"
	CodeCodeExpired             = "auth/code-expired"
	CodeSessionExpired          = "auth/session-expired"
	CodeInvalidVerificationID   = "auth/invalid-verification-id"
	CodeUserTokenExpired        = "auth/user-token-expired"
	CodeInternalError           = "auth/internal-error"
)

// ProviderError is a failure reported by the provider with its vendor code.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
