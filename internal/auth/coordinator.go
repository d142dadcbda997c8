package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/alexjbarnes/slack-signin/internal/profile"
	"github.com/alexjbarnes/slack-signin/internal/slack"
)

// Error codes placed in the landing redirect's "error" parameter.
// Provider-sent errors are passed through verbatim instead.
const (
	CodeMissingCode    = "missing_code"
	CodeConfigError    = "config_error"
	CodeInvalidState   = "invalid_state"
	CodeOAuthFailed    = "oauth_failed"
	CodeUserInfoFailed = "user_info_failed"
	CodeServerError    = "server_error"
)

// Outcome is the result of one callback. Exactly one of Session or
// Code is set.
type Outcome struct {
	Session *models.Session
	Code    string
	Details string
}

// OK reports whether the callback produced a session.
func (o Outcome) OK() bool {
	return o.Session != nil
}

func failure(code, details string) Outcome {
	return Outcome{Code: code, Details: details}
}

// Coordinator turns a callback into a session: validate, exchange the
// code, resolve the profile, build the session record.
type Coordinator struct {
	provider    Provider
	creds       models.ProviderCredentials
	verifyState bool
	logger      *slog.Logger
}

// NewCoordinator returns a Coordinator. creds may be incomplete; such
// callbacks fail with config_error rather than at startup.
func NewCoordinator(provider Provider, creds models.ProviderCredentials, verifyState bool, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		provider:    provider,
		creds:       creds,
		verifyState: verifyState,
		logger:      logger,
	}
}

// AuthorizeURL returns the provider consent URL for state. It fails
// with ErrConfiguration when credentials are missing.
func (c *Coordinator) AuthorizeURL(state string) (string, error) {
	if !c.creds.Complete() {
		return "", fmt.Errorf("slack credentials: %w", errs.ErrConfiguration)
	}

	return c.provider.AuthorizeURL(state), nil
}

// validate runs the checks that need no network, in order. The first
// failure wins.
func (c *Coordinator) validate(req models.CallbackRequest, expectedState string) error {
	if req.ProviderError != "" {
		return fmt.Errorf("%s: %w", req.ProviderError, errs.ErrProviderDenied)
	}

	if req.Code == "" {
		return errs.ErrMissingCode
	}

	if !c.creds.Complete() {
		return errs.ErrConfiguration
	}

	if c.verifyState {
		if req.State == "" || expectedState == "" ||
			subtle.ConstantTimeCompare([]byte(req.State), []byte(expectedState)) != 1 {
			return errs.ErrInvalidState
		}
	}

	return nil
}

// HandleCallback processes one callback. expectedState is the value
// stored by the login redirect. It never panics; unexpected faults
// become server_error.
func (c *Coordinator) HandleCallback(ctx context.Context, req models.CallbackRequest, expectedState string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback: recovered panic", slog.String("panic", fmt.Sprint(r)))
			out = failure(CodeServerError, "")
		}
	}()

	if err := c.validate(req, expectedState); err != nil {
		switch {
		case errors.Is(err, errs.ErrProviderDenied):
			c.logger.Info("callback: provider returned error", slog.String("error", req.ProviderError))
			return failure(req.ProviderError, "")
		case errors.Is(err, errs.ErrMissingCode):
			return failure(CodeMissingCode, "")
		case errors.Is(err, errs.ErrConfiguration):
			c.logger.Error("callback: slack credentials are not configured")
			return failure(CodeConfigError, "")
		default:
			c.logger.Warn("callback: state mismatch")
			return failure(CodeInvalidState, "")
		}
	}

	tr, err := c.provider.Exchange(ctx, req.Code)
	if err != nil {
		var apiErr *slack.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("callback: code exchange rejected", slog.String("slack_error", apiErr.Code))
			return failure(CodeOAuthFailed, apiErr.Code)
		}

		if errors.Is(err, errs.ErrProviderRejected) {
			c.logger.Warn("callback: code exchange rejected", slog.String("error", err.Error()))
			return failure(CodeOAuthFailed, "")
		}

		c.logger.Error("callback: code exchange failed", slog.String("error", err.Error()))

		return failure(CodeServerError, "")
	}

	token := tr.EffectiveToken()

	user, details, err := c.resolveUser(ctx, tr, token)
	if err != nil {
		return failure(CodeUserInfoFailed, details)
	}

	sess, err := models.NewSession(token, user)
	if err != nil {
		c.logger.Error("callback: building session", slog.String("error", err.Error()))
		return failure(CodeServerError, "")
	}

	c.logger.Info("callback: signed in", slog.String("user_id", user.ID))

	return Outcome{Session: sess}
}

// resolveUser fetches and normalizes the profile, falling back to the
// user block embedded in the token response. details carries the
// provider error code when the profile call was rejected.
func (c *Coordinator) resolveUser(ctx context.Context, tr *models.TokenResult, token string) (*models.User, string, error) {
	rp, err := c.provider.FetchProfile(ctx, token)
	if err == nil {
		var user *models.User
		if user, err = profile.Normalize(rp); err == nil {
			return user, "", nil
		}
	}

	c.logger.Warn("callback: profile lookup failed", slog.String("error", err.Error()))

	if embedded, ok := c.provider.EmbeddedProfile(tr); ok {
		user, embErr := profile.Normalize(embedded)
		if embErr == nil {
			c.logger.Info("callback: using profile embedded in token response", slog.String("shape", string(embedded.Shape)))
			return user, "", nil
		}

		c.logger.Warn("callback: embedded profile unusable", slog.String("error", embErr.Error()))
	}

	var details string

	var apiErr *slack.APIError
	if errors.As(err, &apiErr) {
		details = apiErr.Code
	}

	return nil, details, err
}
