// Package slack talks to the Slack sign-in APIs. Three generations of
// the API are supported behind one Client; which one is used is fixed
// by configuration, never inferred from a response.
package slack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Slack origin serving both the browser authorize
// pages and the Web API.
const DefaultBaseURL = "https://slack.com"

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout bounds every outbound call. A timeout is a
	// transport failure; nothing is retried because authorization
	// codes are single use.
	httpClientTimeout = 10 * time.Second

	// maxAPIResponseBytes caps response body reads. Token and profile
	// payloads are a few KB.
	maxAPIResponseBytes = 1024 * 1024
)

// APIError is returned when Slack answers with "ok": false. Code is
// empty when Slack sent no error string.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("slack %s: not ok", e.Method)
	}

	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Unwrap lets callers match provider rejections with errors.Is.
func (e *APIError) Unwrap() error { return errs.ErrProviderRejected }

// Options configures a Client.
type Options struct {
	Variant     Variant
	Credentials models.ProviderCredentials
	BaseURL     string
	// Scopes overrides the variant's default scopes.
	Scopes []string
	// HTTPClient is used for all outbound calls. When nil a client
	// with a 10-second timeout and same-host redirect policy is used.
	HTTPClient *http.Client
}

// Client performs the code exchange and profile lookups for one API
// variant.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      models.ProviderCredentials
	api        *variantAPI
	oauth      oauth2.Config
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so bearer tokens and client
// secrets never reach another domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a Slack client for the given variant.
func NewClient(opts Options) (*Client, error) {
	api, ok := variants[opts.Variant]
	if !ok {
		return nil, fmt.Errorf("unknown slack API variant %q", opts.Variant)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = api.scopes
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		creds:      opts.Credentials,
		api:        api,
		oauth: oauth2.Config{
			ClientID:     opts.Credentials.ClientID,
			ClientSecret: opts.Credentials.ClientSecret,
			RedirectURL:  opts.Credentials.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + api.authorizePath,
				TokenURL:  baseURL + "/api/" + api.tokenMethod,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}

	return c, nil
}

// Variant returns the API variant this client talks to.
func (c *Client) Variant() Variant {
	return c.api.variant
}

// Shape returns the profile shape produced by FetchProfile.
func (c *Client) Shape() models.Shape {
	return c.api.profileShape
}

// AuthorizeURL returns the browser URL that starts the sign-in flow.
func (c *Client) AuthorizeURL(state string) string {
	if c.api.userScopes {
		// v2 puts user-token scopes in user_scope; "scope" is for bot
		// scopes, which sign-in does not need.
		cfg := c.oauth
		cfg.Scopes = nil

		return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("user_scope", strings.Join(c.oauth.Scopes, ",")))
	}

	return c.oauth.AuthCodeURL(state)
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// do sends req and returns the body of a successful ("ok": true)
// response. Network, status and decoding problems wrap ErrTransport;
// an explicit "ok": false becomes an *APIError.
func (c *Client) do(ctx context.Context, req *http.Request, method string) ([]byte, error) {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w: %w", method, errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w: %w", method, errs.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned status %d: %s: %w", method, resp.StatusCode, sanitizeResponseBody(body), errs.ErrTransport)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s returned malformed body: %s: %w", method, sanitizeResponseBody(body), errs.ErrTransport)
	}

	// Slack reports failures as 200 with "ok": false. A missing flag
	// counts as false.
	if !gjson.GetBytes(body, "ok").Bool() {
		return nil, &APIError{Method: method, Code: gjson.GetBytes(body, "error").String()}
	}

	return body, nil
}
