package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
)

const (
	// CookieName is the session cookie.
	CookieName = "slack_session"

	// StateCookieName holds the anti-forgery state between the login
	// redirect and the callback.
	StateCookieName = "slack_oauth_state"

	// MaxAge is the absolute session lifetime: 7 days.
	MaxAge = 7 * 24 * time.Hour

	// stateMaxAge gives the user ten minutes to finish consent.
	stateMaxAge = 10 * time.Minute
)

// Issuer writes and reads the session and state cookies.
type Issuer struct {
	codec  *Codec
	secure bool
	now    func() time.Time
}

// NewIssuer returns an Issuer sealing sessions with secret. secure sets
// the cookie Secure attribute and should be on outside local
// development.
func NewIssuer(secret string, secure bool) (*Issuer, error) {
	codec, err := NewCodec(secret)
	if err != nil {
		return nil, err
	}

	return &Issuer{codec: codec, secure: secure, now: time.Now}, nil
}

func (i *Issuer) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Issue seals s into the session cookie on w. The sealed copy expires
// MaxAge from now whatever the browser does with the cookie.
func (i *Issuer) Issue(w http.ResponseWriter, s *models.Session) error {
	sealed := *s
	sealed.ExpiresAt = i.now().Add(MaxAge).Unix()

	value, err := i.codec.Seal(&sealed)
	if err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}

	http.SetCookie(w, i.cookie(CookieName, value, int(MaxAge.Seconds())))

	return nil
}

// Clear overwrites the session cookie with an empty, already expired
// one. net/http renders a negative MaxAge as "Max-Age=0".
func (i *Issuer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, i.cookie(CookieName, "", -1))
}

// Read returns the session carried by r. It fails with
// ErrNotAuthenticated when there is no cookie and ErrInvalidSession
// when the cookie cannot be opened, has expired or holds no user. The
// user is returned as issued; it is not re-checked with Slack.
func (i *Issuer) Read(r *http.Request) (*models.Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return nil, errs.ErrNotAuthenticated
	}

	s, err := i.codec.Open(strings.TrimSpace(c.Value))
	if err != nil {
		return nil, err
	}

	if s.User == nil {
		return nil, fmt.Errorf("session has no user: %w", errs.ErrInvalidSession)
	}

	if s.ExpiresAt == 0 || i.now().Unix() >= s.ExpiresAt {
		return nil, fmt.Errorf("session expired: %w", errs.ErrInvalidSession)
	}

	return s, nil
}

// IssueState stores the login state value for the callback to compare.
func (i *Issuer) IssueState(w http.ResponseWriter, state string) {
	http.SetCookie(w, i.cookie(StateCookieName, state, int(stateMaxAge.Seconds())))
}

// ReadState returns the stored login state, or "".
func (i *Issuer) ReadState(r *http.Request) string {
	c, err := r.Cookie(StateCookieName)
	if err != nil {
		return ""
	}

	return c.Value
}

// ClearState expires the state cookie. States are single use.
func (i *Issuer) ClearState(w http.ResponseWriter) {
	http.SetCookie(w, i.cookie(StateCookieName, "", -1))
}
