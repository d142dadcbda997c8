package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// Variant selects a generation of the Slack sign-in API.
type Variant string

const (
	// VariantLegacy is "Sign in with Slack" v1: oauth.access plus
	// users.identity.
	VariantLegacy Variant = "legacy"
	// VariantOIDC is Sign in with Slack over OpenID Connect.
	VariantOIDC Variant = "oidc"
	// VariantV2 is oauth.v2.access with a user token in authed_user.
	VariantV2 Variant = "v2"
)

// ParseVariant converts a configuration value into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variants[v]; !ok {
		return "", fmt.Errorf("unknown slack API variant %q", s)
	}

	return v, nil
}

type bodyEncoding int

const (
	encodeJSON bodyEncoding = iota
	encodeForm
)

// variantAPI describes how one API generation is called.
type variantAPI struct {
	variant       Variant
	authorizePath string
	tokenMethod   string
	tokenBody     bodyEncoding
	grantType     bool
	profileMethod string
	profileShape  models.Shape
	scopes        []string
	userScopes    bool
	embedded      func(tr *models.TokenResult) (*models.RawProfile, bool)
}

var variants = map[Variant]*variantAPI{
	VariantLegacy: {
		variant:       VariantLegacy,
		authorizePath: "/oauth/authorize",
		tokenMethod:   "oauth.access",
		tokenBody:     encodeJSON,
		profileMethod: "users.identity",
		profileShape:  models.ShapeIdentity,
		scopes:        []string{"identity.basic", "identity.email", "identity.avatar"},
		embedded:      embeddedUserBlock("user.id"),
	},
	VariantOIDC: {
		variant:       VariantOIDC,
		authorizePath: "/openid/connect/authorize",
		tokenMethod:   "openid.connect.token",
		tokenBody:     encodeForm,
		grantType:     true,
		profileMethod: "openid.connect.userInfo",
		profileShape:  models.ShapeOIDC,
		scopes:        []string{"openid", "email", "profile"},
		embedded:      embeddedIDTokenClaims,
	},
	VariantV2: {
		variant:       VariantV2,
		authorizePath: "/oauth/v2/authorize",
		tokenMethod:   "oauth.v2.access",
		tokenBody:     encodeForm,
		profileMethod: "users.identity",
		profileShape:  models.ShapeIdentity,
		scopes:        []string{"identity.basic", "identity.email", "identity.avatar"},
		userScopes:    true,
		embedded:      embeddedUserBlock("authed_user.id"),
	},
}

// Exchange trades an authorization code for tokens. It is called at
// most once per code.
func (c *Client) Exchange(ctx context.Context, code string) (*models.TokenResult, error) {
	method := c.api.tokenMethod

	params := map[string]string{
		"client_id":     c.creds.ClientID,
		"client_secret": c.creds.ClientSecret,
		"code":          code,
		"redirect_uri":  c.creds.RedirectURI,
	}
	if c.api.grantType {
		params["grant_type"] = "authorization_code"
	}

	req, err := newTokenRequest(c.oauth.Endpoint.TokenURL, c.api.tokenBody, params)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}

	body, err := c.do(ctx, req, method)
	if err != nil {
		return nil, err
	}

	var tr models.TokenResult
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w: %w", method, errs.ErrTransport, err)
	}

	tr.Raw = body

	if tr.EffectiveToken() == "" {
		return nil, fmt.Errorf("%s response has no access token: %w", method, errs.ErrTransport)
	}

	return &tr, nil
}

func newTokenRequest(tokenURL string, enc bodyEncoding, params map[string]string) (*http.Request, error) {
	if enc == encodeForm {
		form := url.Values{}
		for k, v := range params {
			form.Set(k, v)
		}

		req, err := http.NewRequest(http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return req, nil
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// FetchProfile calls the variant's identity endpoint with a bearer
// token and returns the raw payload tagged with its shape.
func (c *Client) FetchProfile(ctx context.Context, token string) (*models.RawProfile, error) {
	method := c.api.profileMethod

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/"+method, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(ctx, req, method)
	if err != nil {
		return nil, err
	}

	return &models.RawProfile{Shape: c.api.profileShape, Body: body}, nil
}

// EmbeddedProfile returns the user block carried by the token response
// itself, if this variant has one and the response included it.
func (c *Client) EmbeddedProfile(tr *models.TokenResult) (*models.RawProfile, bool) {
	if tr == nil {
		return nil, false
	}

	return c.api.embedded(tr)
}

// embeddedUserBlock maps a token response that carries a user id at
// idPath. The full body is kept so the token_user mapping can pick up
// name, email and avatar when the legacy response includes them.
func embeddedUserBlock(idPath string) func(tr *models.TokenResult) (*models.RawProfile, bool) {
	return func(tr *models.TokenResult) (*models.RawProfile, bool) {
		if gjson.GetBytes(tr.Raw, idPath).String() == "" {
			return nil, false
		}

		return &models.RawProfile{Shape: models.ShapeTokenUser, Body: tr.Raw}, true
	}
}

// embeddedIDTokenClaims exposes the OpenID Connect id_token claims as an
// oidc-shaped profile. The signature is not checked: the token came
// straight from the token endpoint over TLS, which OpenID Connect Core
// 3.1.3.7 accepts in place of signature validation.
func embeddedIDTokenClaims(tr *models.TokenResult) (*models.RawProfile, bool) {
	if tr.IDToken == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.IDToken, claims); err != nil {
		return nil, false
	}

	body, err := json.Marshal(claims)
	if err != nil {
		return nil, false
	}

	return &models.RawProfile{Shape: models.ShapeOIDC, Body: body}, true
}
