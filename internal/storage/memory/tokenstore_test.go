package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/storage/memory"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

func TestTokenStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	device := "urn:sm:device:pixel-7"
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.Current(ctx, device)
	require.ErrorIs(t, err, push.ErrTokenNotFound)

	change, err := store.Replace(ctx, push.Token{Value: "t1", DeviceID: device, IssuedAt: t0})
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.False(t, change.Rotated())

	change, err = store.Replace(ctx, push.Token{Value: "t1", DeviceID: device, IssuedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Equal(t, t0, change.Current.IssuedAt, "unchanged token keeps its original issue time")

	change, err = store.Replace(ctx, push.Token{Value: "t2", DeviceID: device, IssuedAt: t0.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.True(t, change.Rotated())
	assert.Equal(t, "t1", change.Previous.Value)
	require.NotNil(t, change.Previous.SupersededAt)
	assert.Equal(t, t0.Add(2*time.Hour), *change.Previous.SupersededAt)

	_, err = store.Replace(ctx, push.Token{Value: "t3", DeviceID: device, IssuedAt: t0.Add(3 * time.Hour)})
	require.NoError(t, err)

	current, err := store.Current(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, "t3", current.Value)
	assert.Nil(t, current.SupersededAt)

	history, err := store.History(ctx, device)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "t2", history[0].Value)
	assert.Equal(t, "t1", history[1].Value)
}

func TestTokenStore_HistoryForUnknownDevice(t *testing.T) {
	history, err := memory.NewTokenStore().History(context.Background(), "urn:sm:device:none")
	require.NoError(t, err)
	assert.Empty(t, history)
}
