// Package server provides HTTP server construction for slack-signin.
package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/slack-signin/internal/auth"
	"github.com/alexjbarnes/slack-signin/internal/session"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Coordinator *auth.Coordinator
	Sessions    *session.Issuer
	Paths       auth.Paths
	Logger      *slog.Logger
}

// NewMux builds the HTTP mux with the sign-in, callback, logout and
// session endpoints. /api/auth/me is protected by the session
// middleware.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/api/auth/login", auth.HandleLogin(cfg.Coordinator, cfg.Sessions, cfg.Paths, cfg.Logger))
	mux.HandleFunc("/api/auth/callback", auth.HandleCallback(cfg.Coordinator, cfg.Sessions, cfg.Paths, cfg.Logger))
	mux.HandleFunc("/api/auth/logout", auth.HandleLogout(cfg.Sessions, cfg.Logger))

	requireSession := auth.RequireSession(cfg.Sessions, cfg.Logger)
	mux.Handle("/api/auth/me", requireSession(auth.HandleMe()))

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
