// Package store implements the Credential Store: on-disk persistence and
// in-memory enumeration of OAuth credentials for the antigravity upstream.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Credential is a single antigravity OAuth identity.
type Credential struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Timestamp    int64  `json:"timestamp"`
	Enable       bool   `json:"enable"`
	HasQuota     bool   `json:"hasQuota"`
	ProjectID    string `json:"projectId,omitempty"`
	Email        string `json:"email,omitempty"`

	// SessionID is generated at load time and never persisted.
	SessionID string `json:"-"`
}

// IsExpired reports whether the access token should be considered expired,
// applying a 300-second safety margin ahead of the server-reported expiry.
func (c *Credential) IsExpired(now time.Time) bool {
	if c == nil {
		return true
	}
	expireAt := c.Timestamp + (c.ExpiresIn-300)*1000
	return now.UnixMilli() >= expireAt
}

// Clone returns a shallow copy safe to hand to a caller without risking
// mutation of the store's own records.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// assignSessionID generates a fresh, never-persisted session identifier.
func assignSessionID(c *Credential) {
	c.SessionID = uuid.NewString()
}
