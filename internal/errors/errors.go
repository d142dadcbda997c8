package errors

import "errors"

// Callback request errors. These never reach the provider.
var (
	ErrProviderDenied = errors.New("provider denied authorization")
	ErrMissingCode    = errors.New("missing authorization code")
	ErrConfiguration  = errors.New("provider credentials not configured")
	ErrInvalidState   = errors.New("state parameter mismatch")
)

// Provider/transport errors.
var (
	ErrProviderRejected  = errors.New("provider rejected request")
	ErrTransport         = errors.New("provider request failed")
	ErrProfileIncomplete = errors.New("profile has no user id")
)

// Session errors.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidSession   = errors.New("invalid session")
)
