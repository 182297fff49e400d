package auth

import "errors"

var (
	// ErrTokenInvalid is returned for malformed, expired or wrongly signed tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInsufficientScope is returned when a valid token lacks the scope a
	// route requires.
	ErrInsufficientScope = errors.New("auth: insufficient scope")

	// ErrMissingSecret is returned when signing without a secret.
	ErrMissingSecret = errors.New("auth: signing secret is required")
)
