// Package pipeline adapts the Pub/Sub streaming pipeline to the ingestor.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// inboundMessage is the provider envelope published to the ingestion topic.
type inboundMessage struct {
	MessageID string            `json:"message_id"`
	Data      map[string]string `json:"data"`
}

// MessageTransformer decodes a raw Pub/Sub payload into a push.Message.
// When the envelope carries no message_id the Pub/Sub message ID is used;
// Pub/Sub keeps that ID stable across redeliveries.
func MessageTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.Message, bool, error) {
	var in inboundMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		// skip=true hands the message to the StreamingService Nack/DLQ path.
		return nil, true, fmt.Errorf("failed to unmarshal push message %s: %w", msg.ID, err)
	}

	id := strings.TrimSpace(in.MessageID)
	if id == "" {
		id = msg.ID
	}
	if id == "" {
		return nil, true, fmt.Errorf("%w: message has no identifier", push.ErrInvalidMessage)
	}

	return &push.Message{
		ID:         id,
		Payload:    in.Data,
		ReceivedAt: time.Now().UTC(),
	}, false, nil
}
