package domain

import "time"

// Verification is a pending phone verification: a code was sent to Phone and can be confirmed with
// ID (the confirmation handle) until ExpiresAt or until Attempts reaches the configured maximum.
type Verification struct {
	ID        string
	Phone     string
	CodeHash  string
	Attempts  int
	ClientIP  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether v can no longer be confirmed at now.
func (v *Verification) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
