// Package api holds the JSON bodies of the /v1 HTTP API, shared by the server handlers and the
// remote provider used by the CLI.
package api

import "time"

// Prefix is the version prefix of every route.
const Prefix = "/v1"

type CreateChallengeRequest struct {
	ContainerID string `json:"container_id"`
	Size        string `json:"size,omitempty"`
}

type CreateChallengeResponse struct {
	WidgetID string `json:"widget_id"`
}

type RenderChallengeResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SendCodeRequest struct {
	PhoneNumber    string `json:"phone_number"`
	ChallengeToken string `json:"challenge_token"`
}

type SendCodeResponse struct {
	Handle    string    `json:"handle"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConfirmCodeRequest struct {
	Handle string `json:"handle"`
	Code   string `json:"code"`
}

// Identity is the public view of a signed-in user.
type Identity struct {
	UID          string     `json:"uid"`
	PhoneNumber  string     `json:"phone_number"`
	DisplayName  string     `json:"display_name"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// AuthResponse is returned by code confirmation and token refresh.
type AuthResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
	IsNew        bool      `json:"is_new,omitempty"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Message string `json:"message"`
}

type ContactResponse struct {
	ID      string `json:"id"`
	Relayed bool   `json:"relayed"`
}

type DevOTPResponse struct {
	OTP  string `json:"otp"`
	Note string `json:"note"`
}

type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditListResponse struct {
	Entries []AuditEntry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
