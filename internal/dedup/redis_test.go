package dedup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/dedup"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func TestRedisWindow_Observe(t *testing.T) {
	ctx := context.Background()

	t.Run("SETNX success means first-seen", func(t *testing.T) {
		client := new(mockRedis)
		window := dedup.NewRedisWindow(client, "ingest", 5*time.Minute)
		client.On("SetNX", ctx, "ingest:dedup:msg-1", "1", 5*time.Minute).Return(true, nil).Once()

		obs, err := window.Observe(ctx, "msg-1")

		require.NoError(t, err)
		assert.Equal(t, push.FirstSeen, obs)
		client.AssertExpectations(t)
	})

	t.Run("Existing key means duplicate", func(t *testing.T) {
		client := new(mockRedis)
		window := dedup.NewRedisWindow(client, "ingest", 5*time.Minute)
		client.On("SetNX", ctx, "ingest:dedup:msg-1", "1", 5*time.Minute).Return(false, nil)

		obs, err := window.Observe(ctx, "msg-1")

		require.NoError(t, err)
		assert.Equal(t, push.Duplicate, obs)
	})

	t.Run("Redis failure surfaces as storage unavailable", func(t *testing.T) {
		client := new(mockRedis)
		window := dedup.NewRedisWindow(client, "ingest", 0)
		client.On("SetNX", ctx, mock.Anything, mock.Anything, dedup.DefaultRetention).
			Return(false, errors.New("connection refused"))

		_, err := window.Observe(ctx, "msg-1")

		require.Error(t, err)
		assert.ErrorIs(t, err, push.ErrStorageUnavailable)
	})
}
