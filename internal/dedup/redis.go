package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

const (
	keySeparator     = ":"
	dedupPrefix      = "dedup"
	placeholderValue = "1"
)

// SetNXClient writes key only if it is absent and reports whether it did.
// cache.RedisClient satisfies it.
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// RedisWindow shares the dedup window between replicas. SETNX with a TTL makes
// the check-and-record atomic and lets Redis expire old identifiers.
type RedisWindow struct {
	client    SetNXClient
	namespace string
	retention time.Duration
}

// NewRedisWindow creates a window keyed under namespace.
func NewRedisWindow(client SetNXClient, namespace string, retention time.Duration) *RedisWindow {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisWindow{
		client:    client,
		namespace: namespace,
		retention: retention,
	}
}

func (w *RedisWindow) Observe(ctx context.Context, messageID string) (push.Observation, error) {
	isNew, err := w.client.SetNX(ctx, w.key(messageID), placeholderValue, w.retention)
	if err != nil {
		return push.FirstSeen, fmt.Errorf("%w: redis setnx: %w", push.ErrStorageUnavailable, err)
	}
	if isNew {
		return push.FirstSeen, nil
	}
	return push.Duplicate, nil
}

// key format: {namespace}:dedup:{messageID}
func (w *RedisWindow) key(messageID string) string {
	return strings.Join([]string{w.namespace, dedupPrefix, messageID}, keySeparator)
}
