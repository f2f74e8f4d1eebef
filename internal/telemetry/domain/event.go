package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the auth server.
const (
	EventCodeSent        = "code_sent"
	EventCodeSendFailed  = "code_send_failed"
	EventSignIn          = "sign_in"
	EventSignInFailed    = "sign_in_failed"
	EventTokenRefreshed  = "token_refreshed"
	EventRefreshReuse    = "refresh_reuse_detected"
	EventSignedOut       = "signed_out"
	EventProfileUpdated  = "profile_updated"
	EventContactReceived = "contact_received"
	EventHTTPRequest     = "http_request"
)

// AuthEvent is one telemetry record. Phones are masked before they reach an event.
type AuthEvent struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	Phone     string          `json:"phone,omitempty"`
	Outcome   string          `json:"outcome,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// MetadataJSON encodes m for AuthEvent.Metadata; empty maps yield nil.
func MetadataJSON(m map[string]string) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
