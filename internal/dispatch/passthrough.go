package dispatch

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// PassThrough accepts every message and only logs it. It is the explicit form
// of the provider SDK's default handling.
func PassThrough(logger *slog.Logger) push.Handler {
	logger = logger.With("component", "PassThroughHandler")
	return push.HandlerFunc(func(_ context.Context, msg push.Message) error {
		logger.Debug("Message accepted", "message_id", msg.ID, "payload_keys", len(msg.Payload))
		return nil
	})
}
