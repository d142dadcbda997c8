package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/alexjbarnes/slack-signin/internal/session"
)

type contextKey int

const ctxUser contextKey = iota

// CurrentUser returns the signed-in user from the context, or nil.
func CurrentUser(ctx context.Context) *models.User {
	v, _ := ctx.Value(ctxUser).(*models.User)
	return v
}

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// RequireSession returns middleware that reads the session cookie.
// Requests without a valid session get a 401 JSON error; the rest see
// the user through CurrentUser.
func RequireSession(sessions *session.Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)

			sess, err := sessions.Read(r)
			if err != nil {
				logger.Debug("middleware: no usable session",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusUnauthorized, sessionErrorMessage(err))

				return
			}

			logger.Debug("middleware: authenticated via session",
				slog.String("user_id", sess.User.ID),
				slog.String("ip", ip),
			)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUser, sess.User)))
		})
	}
}
