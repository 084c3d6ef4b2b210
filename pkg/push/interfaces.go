// Package push contains the public contracts and domain models shared by the
// ingestion pipeline, the token tracker and the dispatcher.
package push

import (
	"context"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// TokenStore defines the contract for tracking the registration token of a device.
type TokenStore interface {
	// SetToken records value as the current token for device. Setting the value
	// that is already current is a no-op.
	SetToken(ctx context.Context, device urn.URN, value string) error

	// CurrentToken returns the current token or ErrTokenNotFound.
	CurrentToken(ctx context.Context, device urn.URN) (Token, error)
}

// Deduplicator reports whether a message identifier was already seen inside
// the retention window. The check and the record happen atomically.
type Deduplicator interface {
	Observe(ctx context.Context, messageID string) (Observation, error)
}

// Handler is the application-level consumer of an inbound message.
// It must honour ctx; the dispatcher stops waiting once ctx expires.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// RotationListener is notified after a device token has been superseded.
type RotationListener interface {
	OnTokenRotated(ctx context.Context, event TokenRotation) error
}

// RotationListenerFunc adapts a plain function to a RotationListener.
type RotationListenerFunc func(ctx context.Context, event TokenRotation) error

func (f RotationListenerFunc) OnTokenRotated(ctx context.Context, event TokenRotation) error {
	return f(ctx, event)
}
