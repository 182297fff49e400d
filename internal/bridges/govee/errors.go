package govee

import "errors"

// Domain errors for the Govee bridge package.
var (
	// ErrInvalidPayload is returned when an inbound command payload is
	// neither a JSON object nor a bare ON/OFF.
	ErrInvalidPayload = errors.New("govee: invalid command payload")

	// ErrUnknownEntity is returned for commands addressed to an entity the
	// store does not know, or to the service record.
	ErrUnknownEntity = errors.New("govee: unknown entity")

	// ErrUnknownMode is returned when a mode command names a mode the
	// entity does not have.
	ErrUnknownMode = errors.New("govee: unknown mode")

	// ErrInvalidInterval is returned for an out-of-range interval setting.
	ErrInvalidInterval = errors.New("govee: invalid interval")

	// ErrUnknownServiceCommand is returned for service keys without a handler.
	ErrUnknownServiceCommand = errors.New("govee: unknown service command")

	// ErrSchedulerPanic wraps a panic recovered inside a refresh loop.
	ErrSchedulerPanic = errors.New("govee: scheduler panic")
)
