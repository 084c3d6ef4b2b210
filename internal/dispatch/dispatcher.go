// Package dispatch routes a decoded push message to the registered
// application handlers and aggregates their results into a DeliveryRecord.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

const (
	// DefaultHandlerTimeout bounds a single handler invocation.
	DefaultHandlerTimeout = 5 * time.Second
	// DefaultMaxConcurrentHandlers is the number of handlers run at once per message.
	DefaultMaxConcurrentHandlers = 4
	// DefaultHandlerName is the name of the pass-through handler registered by default.
	DefaultHandlerName = "default"
)

type Config struct {
	HandlerTimeout        time.Duration
	MaxConcurrentHandlers int
	// DisableDefaultHandler skips registering the pass-through handler.
	DisableDefaultHandler bool
}

type namedHandler struct {
	name    string
	handler push.Handler
}

// Dispatcher holds no per-message state; handler registrations are the only
// thing it owns.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []namedHandler

	timeout  time.Duration
	maxSlots int64
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a dispatcher. Unless disabled, a pass-through handler named
// "default" is registered first.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}
	if cfg.MaxConcurrentHandlers <= 0 {
		cfg.MaxConcurrentHandlers = DefaultMaxConcurrentHandlers
	}

	d := &Dispatcher{
		timeout:  cfg.HandlerTimeout,
		maxSlots: int64(cfg.MaxConcurrentHandlers),
		now:      time.Now,
		logger:   logger.With("component", "DeliveryDispatcher"),
	}
	if !cfg.DisableDefaultHandler {
		d.Register(DefaultHandlerName, PassThrough(logger))
	}
	return d
}

// Register appends a handler. Handlers run in registration order.
func (d *Dispatcher) Register(name string, h push.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler{name: name, handler: h})
	d.logger.Debug("Handler registered", "handler", name, "position", len(d.handlers))
}

// Handlers returns the registered handler names in order.
func (d *Dispatcher) Handlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.handlers))
	for i, h := range d.handlers {
		names[i] = h.name
	}
	return names
}

// Dispatch invokes every registered handler for msg and waits for each to
// finish or time out. Handler failures are recorded, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg push.Message) push.DeliveryRecord {
	d.mu.RLock()
	handlers := make([]namedHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	results := make([]push.HandlerResult, len(handlers))
	slots := semaphore.NewWeighted(d.maxSlots)
	var wg sync.WaitGroup

	for i, nh := range handlers {
		// Acquire in registration order so handlers start in that order.
		if err := slots.Acquire(ctx, 1); err != nil {
			notStarted := fmt.Errorf("%w: %s not started: %w", push.ErrHandlerException, nh.name, err)
			results[i] = push.HandlerResult{
				Handler: nh.name,
				Status:  push.HandlerFailed,
				Error:   notStarted.Error(),
				Err:     notStarted,
			}
			continue
		}
		wg.Add(1)
		go func(i int, nh namedHandler) {
			defer wg.Done()
			defer slots.Release(1)
			results[i] = d.invoke(ctx, nh, msg)
		}(i, nh)
	}
	wg.Wait()

	record := push.DeliveryRecord{
		MessageID: msg.ID,
		Outcome:   aggregate(results),
		Timestamp: d.now(),
		Handlers:  results,
	}

	if record.Outcome == push.OutcomeHandlerFailed {
		d.logger.Warn("All handlers failed", "message_id", msg.ID, "handlers", len(results))
	}
	return record
}

// invoke runs one handler under its own timeout. The handler goroutine is
// abandoned on timeout; handlers are expected to observe ctx and be idempotent.
func (d *Dispatcher) invoke(ctx context.Context, nh namedHandler, msg push.Message) push.HandlerResult {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := d.now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- nh.handler.Handle(hctx, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-hctx.Done():
		err = hctx.Err()
	}

	result := push.HandlerResult{Handler: nh.name, Elapsed: d.now().Sub(started)}
	switch {
	case err == nil:
		result.Status = push.HandlerOK
		return result
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		result.Status = push.HandlerTimeout
		result.Err = fmt.Errorf("%w: %s after %s", push.ErrHandlerTimeout, nh.name, d.timeout)
	default:
		result.Status = push.HandlerFailed
		result.Err = fmt.Errorf("%w: %s: %w", push.ErrHandlerException, nh.name, err)
	}
	result.Error = result.Err.Error()

	d.logger.Warn("Handler failed",
		"message_id", msg.ID,
		"handler", nh.name,
		"status", result.Status,
		"err", err,
	)
	return result
}

// aggregate: any success means delivered. No handlers counts as delivered.
func aggregate(results []push.HandlerResult) push.Outcome {
	if len(results) == 0 {
		return push.OutcomeDelivered
	}
	for _, r := range results {
		if r.Status == push.HandlerOK {
			return push.OutcomeDelivered
		}
	}
	return push.OutcomeHandlerFailed
}
