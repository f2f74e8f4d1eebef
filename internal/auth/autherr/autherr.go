// Package autherr classifies phone sign-in failures into a small closed taxonomy with user-facing copy.
package autherr

import (
	"errors"
	"fmt"

	"github.com/rightvendors/portfolyze/internal/auth"
)

// Kind is the stable classification surfaced to the UI.
type Kind int

const (
	Unknown Kind = iota
	InvalidPhoneFormat
	ChallengeUnavailable
	RateLimited
	InvalidCode
	CodeExpired
)

var kindNames = map[Kind]string{
	Unknown:              "unknown",
	InvalidPhoneFormat:   "invalid_phone_format",
	ChallengeUnavailable: "challenge_unavailable",
	RateLimited:          "rate_limited",
	InvalidCode:          "invalid_code",
	CodeExpired:          "code_expired",
}

var kindMessages = map[Kind]string{
	Unknown:              "An error occurred. Please try again",
	InvalidPhoneFormat:   "Invalid phone number format",
	ChallengeUnavailable: "Security check could not be loaded. Please try again",
	RateLimited:          "Too many requests. Please try again later",
	InvalidCode:          "Invalid OTP. Please check and try again",
	CodeExpired:          "OTP has expired. Please request a new one",
}

// String returns the stable identifier of k (e.g. "invalid_code").
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[Unknown]
}

// Message returns the human copy shown for k.
func (k Kind) Message() string {
	if s, ok := kindMessages[k]; ok {
		return s
	}
	return kindMessages[Unknown]
}

// Error is a classified failure scoped to the current sign-in attempt. Every kind is recoverable.
type Error struct {
	Kind  Kind
	Cause error
}

// New returns an Error of kind k wrapping cause (which may be nil).
func New(k Kind, cause error) *Error {
	return &Error{Kind: k, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return "auth: " + e.Kind.String()
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Message returns the user-facing copy.
func (e *Error) Message() string { return e.Kind.Message() }

// Is matches another *Error of the same kind, so errors.Is(err, autherr.New(autherr.InvalidCode, nil)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Cause == nil && t.Kind == e.Kind
}

var codeKinds = map[string]Kind{
	auth.CodeInvalidPhoneNumber:      InvalidPhoneFormat,
	auth.CodeMissingPhoneNumber:      InvalidPhoneFormat,
	auth.CodeCaptchaCheckFailed:      ChallengeUnavailable,
	auth.CodeMissingAppCredential:    ChallengeUnavailable,
	auth.CodeTooManyRequests:         RateLimited,
	auth.CodeQuotaExceeded:           RateLimited,
	auth.CodeInvalidVerificationCode: InvalidCode,
	auth.CodeMissingVerificationCode: InvalidCode,
	auth.CodeCodeExpired:             CodeExpired,
	auth.CodeSessionExpired:          CodeExpired,
	auth.CodeInvalidVerificationID:   CodeExpired,
}

// KindForCode maps a provider error code to its Kind. Unrecognised codes are Unknown.
func KindForCode(code string) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return Unknown
}

// Classify maps any error returned by the provider or the core to a *Error. nil stays nil.
// An error that is already classified is returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	var pe *auth.ProviderError
	if errors.As(err, &pe) {
		return New(KindForCode(pe.Code), err)
	}
	// Transport failures and context errors land here.
	return New(Unknown, err)
}

// KindOf is shorthand for Classify(err).Kind; it returns Unknown for nil.
func KindOf(err error) Kind {
	if ce := Classify(err); ce != nil {
		return ce.Kind
	}
	return Unknown
}
