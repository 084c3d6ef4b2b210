package push

import "errors"

var (
	// ErrStorageUnavailable is returned when a backing store cannot be reached.
	// It is surfaced to the caller and never retried internally.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrHandlerTimeout marks a handler that exceeded its allotted time.
	ErrHandlerTimeout = errors.New("handler timed out")

	// ErrHandlerException marks a handler that returned an error or panicked.
	ErrHandlerException = errors.New("handler failed")

	ErrTokenNotFound  = errors.New("token not found")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidMessage = errors.New("invalid message")
)
