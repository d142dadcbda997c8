// Package auth runs the Slack sign-in callback and serves the session
// endpoints built on top of it.
package auth

import (
	"context"

	"github.com/alexjbarnes/slack-signin/internal/models"
)

//go:generate mockgen -source=provider.go -destination=mock_provider_test.go -package=auth

// Provider is the identity provider the coordinator talks to.
// *slack.Client satisfies it for every API variant.
type Provider interface {
	// AuthorizeURL returns the consent URL carrying state.
	AuthorizeURL(state string) string
	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*models.TokenResult, error)
	// FetchProfile loads the signed-in user's profile with token.
	FetchProfile(ctx context.Context, token string) (*models.RawProfile, error)
	// EmbeddedProfile returns the user block carried by the token
	// response itself, if the variant has one.
	EmbeddedProfile(tr *models.TokenResult) (*models.RawProfile, bool)
}
