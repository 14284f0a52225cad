package models

import (
	"errors"
	"strings"
	"time"
)

// Credential is a delegated OAuth credential for one user.
//
// Values are never mutated once handed to the feed engine; a refresh produces a new Credential
// that the caller is expected to persist.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Validate reports whether the credential carries an access token.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("access token is required")
	}
	return nil
}

// CanRefresh reports whether both a refresh token and an expiry are known.
func (c Credential) CanRefresh() bool {
	return c.RefreshToken != "" && !c.ExpiresAt.IsZero()
}

// NeedsRefresh reports whether a refreshable credential is within margin of its expiry at now.
func (c Credential) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if !c.CanRefresh() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

// Merge returns next, carrying over the refresh token when the provider did not issue a new one.
func (c Credential) Merge(next Credential) Credential {
	if next.RefreshToken == "" {
		next.RefreshToken = c.RefreshToken
	}
	return next
}

// ExpiresIn is the remaining lifetime at now, clamped at zero. Zero is also returned when no expiry is known.
func (c Credential) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// StoredCredential is a [Credential] persisted under a CLI profile name.
type StoredCredential struct {
	Profile    string
	Credential Credential
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s *StoredCredential) ID() string { return s.Profile }

func (s *StoredCredential) Validate() error {
	if strings.TrimSpace(s.Profile) == "" {
		return errors.New("profile is required")
	}
	return s.Credential.Validate()
}
