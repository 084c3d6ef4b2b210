package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/dispatch"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(calls *callCounter) push.Handler {
	return push.HandlerFunc(func(context.Context, push.Message) error {
		calls.inc()
		return nil
	})
}

type callCounter struct {
	mu sync.Mutex
	n  int
}

func (c *callCounter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *callCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func blockingHandler() push.Handler {
	return push.HandlerFunc(func(ctx context.Context, _ push.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

func TestDispatch_PartialFailure(t *testing.T) {
	ctx := context.Background()
	d := dispatch.New(dispatch.Config{DisableDefaultHandler: true}, newTestLogger())

	first, third := &callCounter{}, &callCounter{}
	d.Register("first", okHandler(first))
	d.Register("second", push.HandlerFunc(func(context.Context, push.Message) error {
		return errors.New("boom")
	}))
	d.Register("third", okHandler(third))

	record := d.Dispatch(ctx, push.Message{ID: "msg-1"})

	assert.Equal(t, "msg-1", record.MessageID)
	assert.Equal(t, push.OutcomeDelivered, record.Outcome)
	require.Len(t, record.Handlers, 3)

	assert.Equal(t, "first", record.Handlers[0].Handler)
	assert.Equal(t, push.HandlerOK, record.Handlers[0].Status)

	assert.Equal(t, "second", record.Handlers[1].Handler)
	assert.Equal(t, push.HandlerFailed, record.Handlers[1].Status)
	assert.ErrorIs(t, record.Handlers[1].Err, push.ErrHandlerException)
	assert.Contains(t, record.Handlers[1].Error, "boom")

	assert.Equal(t, push.HandlerOK, record.Handlers[2].Status)
	assert.Equal(t, 1, first.get())
	assert.Equal(t, 1, third.get(), "a failing handler must not stop later handlers")

	failed := record.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "second", failed[0].Handler)
}

func TestDispatch_AllTimeoutIsBounded(t *testing.T) {
	ctx := context.Background()
	timeout := 50 * time.Millisecond
	d := dispatch.New(dispatch.Config{
		HandlerTimeout:        timeout,
		MaxConcurrentHandlers: 2,
		DisableDefaultHandler: true,
	}, newTestLogger())

	for _, name := range []string{"a", "b", "c", "d"} {
		d.Register(name, blockingHandler())
	}

	start := time.Now()
	record := d.Dispatch(ctx, push.Message{ID: "msg-slow"})
	elapsed := time.Since(start)

	assert.Equal(t, push.OutcomeHandlerFailed, record.Outcome)
	for _, r := range record.Handlers {
		assert.Equal(t, push.HandlerTimeout, r.Status)
		assert.ErrorIs(t, r.Err, push.ErrHandlerTimeout)
	}
	// 4 handlers over 2 slots: two rounds of the timeout, plus scheduling slack.
	assert.Less(t, elapsed, 2*timeout+time.Second)
}

func TestDispatch_HandlerIgnoringContextStillTimesOut(t *testing.T) {
	d := dispatch.New(dispatch.Config{
		HandlerTimeout:        20 * time.Millisecond,
		DisableDefaultHandler: true,
	}, newTestLogger())

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	d.Register("stuck", push.HandlerFunc(func(context.Context, push.Message) error {
		<-release
		return nil
	}))

	record := d.Dispatch(context.Background(), push.Message{ID: "msg-stuck"})

	require.Len(t, record.Handlers, 1)
	assert.Equal(t, push.HandlerTimeout, record.Handlers[0].Status)
	assert.Equal(t, push.OutcomeHandlerFailed, record.Outcome)
}

func TestDispatch_PanicIsRecorded(t *testing.T) {
	d := dispatch.New(dispatch.Config{DisableDefaultHandler: true}, newTestLogger())
	d.Register("panics", push.HandlerFunc(func(context.Context, push.Message) error {
		panic("nil map")
	}))

	record := d.Dispatch(context.Background(), push.Message{ID: "msg-panic"})

	require.Len(t, record.Handlers, 1)
	assert.Equal(t, push.HandlerFailed, record.Handlers[0].Status)
	assert.ErrorIs(t, record.Handlers[0].Err, push.ErrHandlerException)
	assert.Contains(t, record.Handlers[0].Error, "nil map")
}

func TestDispatch_SequentialPreservesOrder(t *testing.T) {
	d := dispatch.New(dispatch.Config{MaxConcurrentHandlers: 1, DisableDefaultHandler: true}, newTestLogger())

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"one", "two", "three"} {
		name := name
		d.Register(name, push.HandlerFunc(func(context.Context, push.Message) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}))
	}

	record := d.Dispatch(context.Background(), push.Message{ID: "msg-order"})

	assert.Equal(t, push.OutcomeDelivered, record.Outcome)
	assert.Equal(t, []string{"one", "two", "three"}, order)
}

func TestDispatch_DefaultHandler(t *testing.T) {
	t.Run("Registered by default", func(t *testing.T) {
		d := dispatch.New(dispatch.Config{}, newTestLogger())
		assert.Equal(t, []string{dispatch.DefaultHandlerName}, d.Handlers())

		record := d.Dispatch(context.Background(), push.Message{ID: "msg-1", Payload: map[string]string{"k": "v"}})
		assert.Equal(t, push.OutcomeDelivered, record.Outcome)
	})

	t.Run("No handlers counts as delivered", func(t *testing.T) {
		d := dispatch.New(dispatch.Config{DisableDefaultHandler: true}, newTestLogger())
		record := d.Dispatch(context.Background(), push.Message{ID: "msg-1"})
		assert.Equal(t, push.OutcomeDelivered, record.Outcome)
		assert.Empty(t, record.Handlers)
	})
}

func TestDispatch_HostCancellation(t *testing.T) {
	d := dispatch.New(dispatch.Config{DisableDefaultHandler: true}, newTestLogger())
	d.Register("blocking", blockingHandler())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record := d.Dispatch(ctx, push.Message{ID: "msg-cancelled"})

	require.Len(t, record.Handlers, 1)
	assert.Equal(t, push.HandlerFailed, record.Handlers[0].Status)
	assert.ErrorIs(t, record.Handlers[0].Err, context.Canceled)
	assert.Equal(t, push.OutcomeHandlerFailed, record.Outcome)
}
