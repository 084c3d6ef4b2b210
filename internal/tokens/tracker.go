// Package tokens tracks the current registration token of each device and
// notifies listeners when a token is superseded.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// Repository is the durable storage behind the Tracker.
type Repository interface {
	// Current returns the current token of a device or push.ErrTokenNotFound.
	Current(ctx context.Context, deviceID string) (push.Token, error)

	// Replace atomically makes next the current token of next.DeviceID. If the
	// stored value equals next.Value nothing is written and Changed is false.
	// Otherwise the previous token is stamped superseded and kept as history.
	Replace(ctx context.Context, next push.Token) (push.TokenChange, error)

	// History returns superseded tokens, newest first.
	History(ctx context.Context, deviceID string) ([]push.Token, error)
}

type namedListener struct {
	name     string
	listener push.RotationListener
}

// Tracker implements push.TokenStore on top of a Repository.
type Tracker struct {
	repo  Repository
	locks *keyedMutex

	mu        sync.RWMutex
	listeners []namedListener

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

func NewTracker(repo Repository, logger *slog.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		locks:  newKeyedMutex(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.With("component", "TokenTracker"),
	}
}

// AddListener registers a rotation listener. Listeners run in registration order.
func (t *Tracker) AddListener(name string, l push.RotationListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, namedListener{name: name, listener: l})
}

// SetToken stores value as the current token of device. Updates for the same
// device are serialized; a rotation is announced while the device lock is
// still held so listeners see rotations in order.
func (t *Tracker) SetToken(ctx context.Context, device urn.URN, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: empty token value", push.ErrInvalidToken)
	}
	deviceID := device.String()

	unlock := t.locks.Lock(deviceID)
	defer unlock()

	now := t.now()
	change, err := t.repo.Replace(ctx, push.Token{
		Value:    value,
		DeviceID: deviceID,
		IssuedAt: now,
	})
	if err != nil {
		return storageErr("replace token", err)
	}

	log := t.logger.With("device_id", deviceID)
	switch {
	case !change.Changed:
		log.Debug("Token unchanged; ignoring")
		return nil
	case !change.Rotated():
		log.Info("Token registered")
		return nil
	}

	event := push.TokenRotation{
		ID:        t.newID(),
		DeviceID:  deviceID,
		Previous:  *change.Previous,
		Current:   change.Current,
		RotatedAt: now,
	}
	log.Info("Token rotated", "rotation_id", event.ID)
	t.notify(ctx, event)
	return nil
}

// CurrentToken returns the current token or push.ErrTokenNotFound.
func (t *Tracker) CurrentToken(ctx context.Context, device urn.URN) (push.Token, error) {
	tok, err := t.repo.Current(ctx, device.String())
	if err != nil {
		if errors.Is(err, push.ErrTokenNotFound) {
			return push.Token{}, err
		}
		return push.Token{}, storageErr("read current token", err)
	}
	return tok, nil
}

// History returns the superseded tokens of device, newest first.
func (t *Tracker) History(ctx context.Context, device urn.URN) ([]push.Token, error) {
	history, err := t.repo.History(ctx, device.String())
	if err != nil {
		return nil, storageErr("read token history", err)
	}
	return history, nil
}

func (t *Tracker) notify(ctx context.Context, event push.TokenRotation) {
	t.mu.RLock()
	listeners := make([]namedListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.RUnlock()

	for _, l := range listeners {
		if err := l.listener.OnTokenRotated(ctx, event); err != nil {
			// The token is already stored; a listener failure must not undo it.
			t.logger.Warn("Rotation listener failed",
				"listener", l.name,
				"device_id", event.DeviceID,
				"rotation_id", event.ID,
				"err", err,
			)
		}
	}
}

func storageErr(op string, err error) error {
	if errors.Is(err, push.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", push.ErrStorageUnavailable, op, err)
}
