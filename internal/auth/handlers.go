package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/alexjbarnes/slack-signin/internal/session"
)

// stateBytes is the number of random bytes in a login state value
// (hex-encoded to twice this length).
const stateBytes = 32

// Paths are the browser destinations after a callback.
type Paths struct {
	Landing string
	Home    string
}

// RandomHex returns n random bytes, hex-encoded.
func RandomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}

// redirectWithError sends the browser to the landing page with the
// error code, and details when there are any.
func redirectWithError(w http.ResponseWriter, r *http.Request, landing, errCode, details string) {
	params := url.Values{}
	params.Set("error", errCode)

	if details != "" {
		params.Set("details", details)
	}

	sep := "?"
	if strings.Contains(landing, "?") {
		sep = "&"
	}

	http.Redirect(w, r, landing+sep+params.Encode(), http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleLogin returns the /api/auth/login handler. It stores a fresh
// state value in a short-lived cookie and redirects to Slack.
func HandleLogin(coord *Coordinator, sessions *session.Issuer, paths Paths, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		state := RandomHex(stateBytes)

		target, err := coord.AuthorizeURL(state)
		if err != nil {
			logger.Error("login: cannot start sign-in", slog.String("error", err.Error()))
			redirectWithError(w, r, paths.Landing, CodeConfigError, "")

			return
		}

		sessions.IssueState(w, state)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// HandleCallback returns the /api/auth/callback handler. Success sets
// the session cookie and redirects home; every failure redirects to the
// landing page with an error code.
func HandleCallback(coord *Coordinator, sessions *session.Issuer, paths Paths, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		req := models.CallbackRequest{
			Code:          q.Get("code"),
			State:         q.Get("state"),
			ProviderError: q.Get("error"),
		}

		out := coord.HandleCallback(r.Context(), req, sessions.ReadState(r))

		// States are single use whatever the outcome.
		sessions.ClearState(w)

		if !out.OK() {
			redirectWithError(w, r, paths.Landing, out.Code, out.Details)
			return
		}

		if err := sessions.Issue(w, out.Session); err != nil {
			logger.Error("callback: issuing session", slog.String("error", err.Error()))
			redirectWithError(w, r, paths.Landing, CodeServerError, "")

			return
		}

		http.Redirect(w, r, paths.Home, http.StatusFound)
	}
}

// HandleLogout returns the /api/auth/logout handler. It always clears
// the session cookie.
func HandleLogout(sessions *session.Issuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("logout: recovered panic", slog.String("panic", fmt.Sprint(rec)))
				writeJSONError(w, http.StatusInternalServerError, "Server error")
			}
		}()

		sessions.Clear(w)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HandleMe returns the /api/auth/me handler. It must sit behind
// RequireSession.
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		user := CurrentUser(r.Context())
		if user == nil {
			writeJSONError(w, http.StatusUnauthorized, sessionErrorMessage(errs.ErrNotAuthenticated))
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

// sessionErrorMessage maps a session read failure to the client-facing
// message.
func sessionErrorMessage(err error) string {
	if errors.Is(err, errs.ErrNotAuthenticated) {
		return "Not authenticated"
	}

	return "Invalid session"
}
