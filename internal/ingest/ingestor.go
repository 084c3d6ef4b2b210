// Package ingest is the host-facing entry point: it deduplicates inbound
// messages, dispatches first-seen ones and forwards token events.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// Dispatcher runs the registered handlers for one message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg push.Message) push.DeliveryRecord
}

// RecordSink keeps the trailing window of delivery records.
type RecordSink interface {
	Append(rec push.DeliveryRecord)
	Recent() []push.DeliveryRecord
}

// Recorder receives ingestion metrics. It may be nil.
type Recorder interface {
	ObserveDelivery(rec push.DeliveryRecord)
	ObserveTokenUpdate()
}

type Ingestor struct {
	dedup      push.Deduplicator
	dispatcher Dispatcher
	records    RecordSink
	tokens     push.TokenStore
	metrics    Recorder
	now        func() time.Time
	logger     *slog.Logger
}

func NewIngestor(
	dedup push.Deduplicator,
	dispatcher Dispatcher,
	records RecordSink,
	tokens push.TokenStore,
	metrics Recorder,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		dedup:      dedup,
		dispatcher: dispatcher,
		records:    records,
		tokens:     tokens,
		metrics:    metrics,
		now:        time.Now,
		logger:     logger.With("component", "Ingestor"),
	}
}

// HandleMessage takes one inbound message through
// received -> (duplicate-suppressed | dispatch) -> record.
// A returned error means the message was not processed and may be redelivered;
// handler failures are reported in the record, not as an error.
func (i *Ingestor) HandleMessage(ctx context.Context, msg push.Message) (push.DeliveryRecord, error) {
	msg.ID = strings.TrimSpace(msg.ID)
	if msg.ID == "" {
		return push.DeliveryRecord{}, fmt.Errorf("%w: missing message id", push.ErrInvalidMessage)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = i.now()
	}

	obs, err := i.dedup.Observe(ctx, msg.ID)
	if err != nil {
		return push.DeliveryRecord{}, fmt.Errorf("dedup check for %s: %w", msg.ID, err)
	}

	var record push.DeliveryRecord
	if obs == push.Duplicate {
		record = push.DeliveryRecord{
			MessageID: msg.ID,
			Outcome:   push.OutcomeDuplicateSuppressed,
			Timestamp: i.now(),
		}
		i.logger.Info("Duplicate message suppressed", "message_id", msg.ID)
	} else {
		record = i.dispatcher.Dispatch(ctx, msg)
		i.logger.Debug("Message dispatched", "message_id", msg.ID, "outcome", record.Outcome)
	}

	i.records.Append(record)
	if i.metrics != nil {
		i.metrics.ObserveDelivery(record)
	}
	return record, nil
}

// HandleNewToken records a token refresh for device.
func (i *Ingestor) HandleNewToken(ctx context.Context, device urn.URN, token string) error {
	if err := i.tokens.SetToken(ctx, device, token); err != nil {
		return err
	}
	if i.metrics != nil {
		i.metrics.ObserveTokenUpdate()
	}
	return nil
}

// CurrentToken returns the current token of device.
func (i *Ingestor) CurrentToken(ctx context.Context, device urn.URN) (push.Token, error) {
	return i.tokens.CurrentToken(ctx, device)
}

// RecentDeliveries returns the retained delivery records, oldest first.
func (i *Ingestor) RecentDeliveries() []push.DeliveryRecord {
	return i.records.Recent()
}
