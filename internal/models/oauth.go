package models

// CallbackRequest holds the query parameters of an inbound OAuth
// callback.
type CallbackRequest struct {
	Code          string
	State         string
	ProviderError string
}

// ProviderCredentials identifies this application to the provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Complete reports whether every credential is set.
func (c ProviderCredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// AuthedUser is the user-scoped grant nested in a v2 token response.
type AuthedUser struct {
	ID          string `json:"id"`
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// TokenResult is the decoded code exchange response. Raw keeps the
// undecoded body so embedded user blocks can be mapped later.
type TokenResult struct {
	AccessToken string      `json:"access_token"`
	IDToken     string      `json:"id_token,omitempty"`
	AuthedUser  *AuthedUser `json:"authed_user,omitempty"`
	Raw         []byte      `json:"-"`
}

// EffectiveToken returns the token used for profile lookups. A
// user-scoped token wins over the integration-level one because
// identity endpoints reject bot tokens.
func (t *TokenResult) EffectiveToken() string {
	if t.AuthedUser != nil && t.AuthedUser.AccessToken != "" {
		return t.AuthedUser.AccessToken
	}

	return t.AccessToken
}

// Shape names the layout of a provider profile payload.
type Shape string

const (
	// ShapeIdentity is the users.identity / users.info layout: a "user"
	// object with optional nested "profile".
	ShapeIdentity Shape = "identity"
	// ShapeOIDC is the OpenID Connect userinfo (or id_token claims) layout.
	ShapeOIDC Shape = "oidc"
	// ShapeTokenUser is the user block embedded in a token response.
	ShapeTokenUser Shape = "token_user"
)

// RawProfile is an undecoded profile payload tagged with its shape.
type RawProfile struct {
	Shape Shape
	Body  []byte
}
