package e2e_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alexjbarnes/slack-signin/internal/auth"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/alexjbarnes/slack-signin/internal/server"
	"github.com/alexjbarnes/slack-signin/internal/session"
	"github.com/alexjbarnes/slack-signin/internal/slack"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "e2e-client"
	testClientSecret = "e2e-client-secret"
	testSessionKey   = "e2e-session-secret-0123456789abcdef"
	goodCode         = "good-code"
	userToken        = "xoxp-e2e-user"
	testUserID       = "U0E2E"
)

// fakeSlack stands in for slack.com. It accepts goodCode only and
// records every Web API method called.
type fakeSlack struct {
	srv *httptest.Server

	mu           sync.Mutex
	calls        []string
	profileFails bool
}

func newFakeSlack(t *testing.T) *fakeSlack {
	t.Helper()

	f := &fakeSlack{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeSlack) failProfile() {
	f.mu.Lock()
	f.profileFails = true
	f.mu.Unlock()
}

func (f *fakeSlack) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeSlack) serve(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/api/")

	f.mu.Lock()
	f.calls = append(f.calls, method)
	profileFails := f.profileFails
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch method {
	case "oauth.access", "oauth.v2.access", "openid.connect.token":
		if readCode(r) != goodCode {
			_, _ = io.WriteString(w, `{"ok":false,"error":"invalid_code"}`)
			return
		}

		_, _ = io.WriteString(w, tokenResponse(method))

	case "users.identity", "openid.connect.userInfo":
		if r.Header.Get("Authorization") != "Bearer "+userToken {
			_, _ = io.WriteString(w, `{"ok":false,"error":"invalid_auth"}`)
			return
		}

		if profileFails {
			_, _ = io.WriteString(w, `{"ok":false,"error":"missing_scope"}`)
			return
		}

		if method == "users.identity" {
			fmt.Fprintf(w, `{"ok":true,"user":{"id":%q,"name":"Ada Lovelace","email":"ada@example.com","image_192":"https://a/ada.png"},"team":{"id":"T1"}}`, testUserID)
			return
		}

		fmt.Fprintf(w, `{"ok":true,"sub":%q,"name":"Ada Lovelace","email":"ada@example.com","picture":"https://a/ada.png"}`, testUserID)

	default:
		_, _ = io.WriteString(w, `{"ok":false,"error":"unknown_method"}`)
	}
}

// readCode pulls the authorization code from a JSON or form body.
func readCode(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}

		return body["code"]
	}

	return r.FormValue("code")
}

func tokenResponse(method string) string {
	switch method {
	case "oauth.v2.access":
		return fmt.Sprintf(`{"ok":true,"access_token":"xoxb-bot","authed_user":{"id":%q,"access_token":%q}}`, testUserID, userToken)
	case "oauth.access":
		return fmt.Sprintf(`{"ok":true,"access_token":%q,"user":{"id":%q,"name":"ada"}}`, userToken, testUserID)
	default:
		return fmt.Sprintf(`{"ok":true,"access_token":%q}`, userToken)
	}
}

// harness holds the full e2e stack: the real mux, a real Slack client
// pointed at fakeSlack, and a browser-like client with a cookie jar
// that does not follow redirects.
type harness struct {
	URL    string
	Slack  *fakeSlack
	Client *http.Client
}

func newHarness(t *testing.T, variant slack.Variant) *harness {
	t.Helper()
	return newHarnessWithCredentials(t, variant, true)
}

func newHarnessWithCredentials(t *testing.T, variant slack.Variant, withCreds bool) *harness {
	t.Helper()

	fake := newFakeSlack(t)
	logger := slog.New(slog.DiscardHandler)

	// NewUnstartedServer so the redirect URI can use the real address.
	ts := httptest.NewUnstartedServer(nil)
	serverURL := "http://" + ts.Listener.Addr().String()

	var creds models.ProviderCredentials
	if withCreds {
		creds = models.ProviderCredentials{
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			RedirectURI:  serverURL + "/api/auth/callback",
		}
	}

	client, err := slack.NewClient(slack.Options{
		Variant:     variant,
		Credentials: creds,
		BaseURL:     fake.srv.URL,
		HTTPClient:  fake.srv.Client(),
	})
	require.NoError(t, err)

	sessions, err := session.NewIssuer(testSessionKey, false)
	require.NoError(t, err)

	ts.Config.Handler = server.NewMux(server.MuxConfig{
		Coordinator: auth.NewCoordinator(client, creds, true, logger),
		Sessions:    sessions,
		Paths:       auth.Paths{Landing: "/", Home: "/home"},
		Logger:      logger,
	})
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	browser := ts.Client()
	browser.Jar = jar
	browser.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &harness{URL: serverURL, Slack: fake, Client: browser}
}

func (h *harness) do(t *testing.T, method, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, h.URL+path, nil)
	require.NoError(t, err)

	resp, err := h.Client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

// location returns the parsed Location of a 302 response.
func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	u, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	return u
}

// login starts sign-in and returns the state Slack would echo back.
func (h *harness) login(t *testing.T) string {
	t.Helper()

	u := location(t, h.do(t, http.MethodGet, "/api/auth/login"))
	require.True(t, strings.HasPrefix(u.String(), h.Slack.srv.URL), "login must redirect to slack, got %s", u)

	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	return state
}

// callback simulates Slack redirecting the browser back with params.
func (h *harness) callback(t *testing.T, params url.Values) *url.URL {
	t.Helper()
	return location(t, h.do(t, http.MethodGet, "/api/auth/callback?"+params.Encode()))
}

func (h *harness) me(t *testing.T) (int, map[string]string) {
	t.Helper()

	resp := h.do(t, http.MethodGet, "/api/auth/me")

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}
