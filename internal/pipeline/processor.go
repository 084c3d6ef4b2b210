package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// MessageHandler is the ingestion entry point the processor feeds.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg push.Message) (push.DeliveryRecord, error)
}

// NewProcessor creates the stream stage. A returned error nacks the Pub/Sub
// message for redelivery, so only errors a retry can fix are returned:
// handler failures are final outcomes and are acked.
func NewProcessor(handler MessageHandler, logger *slog.Logger) messagepipeline.StreamProcessor[push.Message] {
	return func(ctx context.Context, original messagepipeline.Message, msg *push.Message) error {
		procLogger := logger.With(
			"message_id", msg.ID,
			"pubsub_msg_id", original.ID,
		)

		record, err := handler.HandleMessage(ctx, *msg)
		if err != nil {
			if errors.Is(err, push.ErrInvalidMessage) {
				procLogger.Warn("Dropping invalid message", "err", err)
				return nil
			}
			procLogger.Error("Ingestion failed; message will be redelivered", "err", err)
			return err
		}

		switch record.Outcome {
		case push.OutcomeHandlerFailed:
			procLogger.Warn("Message processed; every handler failed", "handlers", len(record.Handlers))
		case push.OutcomeDuplicateSuppressed:
			procLogger.Debug("Redelivery suppressed")
		default:
			procLogger.Info("Message delivered", "handlers", len(record.Handlers))
		}
		return nil
	}
}
