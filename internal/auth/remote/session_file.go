package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/auth"
)

// storedSession is what survives a restart: the rotating refresh token and the last known identity.
type storedSession struct {
	AccessToken     string          `json:"access_token"`
	AccessExpiresAt time.Time       `json:"access_expires_at"`
	RefreshToken    string          `json:"refresh_token"`
	Identity        sessionIdentity `json:"identity"`
}

type sessionIdentity struct {
	UID         string `json:"uid"`
	PhoneNumber string `json:"phone_number"`
	DisplayName string `json:"display_name,omitempty"`
}

func sessionFromAuth(res *api.AuthResponse) *storedSession {
	return &storedSession{
		AccessToken:     res.AccessToken,
		AccessExpiresAt: res.ExpiresAt,
		RefreshToken:    res.RefreshToken,
		Identity:        identityFromAPI(res.Identity),
	}
}

func identityFromAPI(i api.Identity) sessionIdentity {
	return sessionIdentity{UID: i.UID, PhoneNumber: i.PhoneNumber, DisplayName: i.DisplayName}
}

func (s *storedSession) provider() *auth.ProviderIdentity {
	if s == nil {
		return nil
	}
	return &auth.ProviderIdentity{
		UID:         s.Identity.UID,
		PhoneNumber: s.Identity.PhoneNumber,
		DisplayName: s.Identity.DisplayName,
	}
}

// loadSession returns nil without error when path is empty or the file does not exist.
func loadSession(path string) (*storedSession, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s storedSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session file %s: %w", path, err)
	}
	return &s, nil
}

// saveSession writes s to path with owner-only permissions, replacing the file atomically.
// A nil s removes the file.
func saveSession(path string, s *storedSession) error {
	if path == "" {
		return nil
	}
	if s == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
