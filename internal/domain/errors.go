package domain

import "errors"

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing persistent record.
	ErrNotFound = errors.New("not found")
	// ErrNoToken is returned when a user has no registered device token.
	ErrNoToken = errors.New("no FCM token")
	// ErrInvalidToken is returned when the provider reports a token as dead
	// or unregistered. The token must be cleared from the registry.
	ErrInvalidToken = errors.New("invalid device token")
	// ErrProviderUnavailable covers transport failures, timeouts and a
	// missing provider configuration. Never triggers token invalidation.
	ErrProviderUnavailable = errors.New("push provider unavailable")
	// ErrSchedulerState is returned by start/stop when the scheduler is
	// already in the requested state. Callers treat it as a warning.
	ErrSchedulerState = errors.New("scheduler already in requested state")
)
