// Package models defines types shared across internal packages.
package models

import (
	"fmt"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
)

// User is the provider-agnostic identity produced by profile
// normalization. Only ID is required.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar"`
}

// Session is the payload carried by the session cookie. The cookie is
// the only copy; nothing is stored server-side.
type Session struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user,omitempty"`
	// ExpiresAt is the absolute expiry in Unix seconds, stamped when
	// the cookie is issued.
	ExpiresAt int64 `json:"exp,omitempty"`
}

// NewSession builds a session for a freshly authenticated user. It
// refuses to build one without an access token or a user ID.
func NewSession(accessToken string, user *User) (*Session, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("empty access token: %w", errs.ErrInvalidSession)
	}

	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("empty user id: %w", errs.ErrInvalidSession)
	}

	u := *user

	return &Session{AccessToken: accessToken, User: &u}, nil
}
