package govee

import "errors"

var (
	// ErrMissingAPIKey is returned by NewClient without an API key.
	ErrMissingAPIKey = errors.New("govee: api key required")

	// ErrRateLimited is returned when the vendor answers 429.
	ErrRateLimited = errors.New("govee: rate limited")

	// ErrUnexpectedStatus is returned for any other non-200 answer.
	ErrUnexpectedStatus = errors.New("govee: unexpected status")

	// ErrUsageNotFound is returned when no usage record has been saved yet.
	ErrUsageNotFound = errors.New("govee: usage record not found")
)
