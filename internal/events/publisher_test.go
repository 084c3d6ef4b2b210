package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/events"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

type fakeSender struct {
	data  []byte
	attrs map[string]string
	err   error
}

func (f *fakeSender) Send(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	f.data = data
	f.attrs = attrs
	if f.err != nil {
		return "", f.err
	}
	return "server-1", nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRotationPublisher(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	event := push.TokenRotation{
		ID:        "evt-1",
		DeviceID:  "urn:sm:device:pixel-7",
		Previous:  push.Token{Value: "t1"},
		Current:   push.Token{Value: "t2"},
		RotatedAt: at,
	}

	t.Run("Publishes JSON payload with attributes", func(t *testing.T) {
		sender := &fakeSender{}
		pub := events.NewRotationPublisher(sender, newTestLogger())

		require.NoError(t, pub.OnTokenRotated(ctx, event))

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(sender.data, &decoded))
		assert.Equal(t, "evt-1", decoded["event_id"])
		assert.Equal(t, "t1", decoded["previous_token"])
		assert.Equal(t, "t2", decoded["current_token"])
		assert.Equal(t, "token.rotated", sender.attrs["event_type"])
		assert.Equal(t, "urn:sm:device:pixel-7", sender.attrs["device_id"])
	})

	t.Run("Send failure is returned", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("topic not found")}
		pub := events.NewRotationPublisher(sender, newTestLogger())

		err := pub.OnTokenRotated(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "evt-1")
	})
}
