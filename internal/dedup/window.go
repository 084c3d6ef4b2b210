// Package dedup suppresses redelivered push messages and keeps the trailing
// window of delivery records.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

const (
	DefaultRetention        = 10 * time.Minute
	DefaultCompactThreshold = 1024
)

// Config holds the knobs shared by the in-memory window and record log.
type Config struct {
	Retention        time.Duration
	CompactThreshold int
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.CompactThreshold <= 0 {
		c.CompactThreshold = DefaultCompactThreshold
	}
	return c
}

// Window is an in-process, time-bounded set of message identifiers.
// A single mutex guards the set, so check-and-record is atomic per identifier.
type Window struct {
	mu        sync.Mutex
	retention time.Duration
	seen      map[string]time.Time
	order     *timeQueue[string]
	now       func() time.Time
	logger    *slog.Logger
}

// NewWindow creates an empty window.
func NewWindow(cfg Config, logger *slog.Logger) *Window {
	cfg = cfg.withDefaults()
	return &Window{
		retention: cfg.Retention,
		seen:      make(map[string]time.Time),
		order:     newTimeQueue[string](cfg.CompactThreshold),
		now:       time.Now,
		logger:    logger.With("component", "DedupWindow"),
	}
}

// Observe records messageID and reports whether it was already seen within
// the retention window. Expired identifiers are evicted first.
func (w *Window) Observe(_ context.Context, messageID string) (push.Observation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)

	if _, ok := w.seen[messageID]; ok {
		return push.Duplicate, nil
	}
	w.seen[messageID] = now
	w.order.push(now, messageID)
	return push.FirstSeen, nil
}

// Len returns the number of identifiers currently retained.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.seen)
}

func (w *Window) evict(now time.Time) {
	evicted := w.order.popExpired(now.Add(-w.retention), func(at time.Time, id string) {
		if seenAt, ok := w.seen[id]; ok && seenAt.Equal(at) {
			delete(w.seen, id)
		}
	})
	if evicted > 0 {
		w.logger.Debug("Evicted expired message ids", "count", evicted, "retained", len(w.seen))
	}
}
