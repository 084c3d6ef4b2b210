// Package events publishes token rotation events to Pub/Sub so other
// services can retarget anything addressed to a superseded token.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// Sender is the transport seam; PubsubSender is the production implementation.
type Sender interface {
	Send(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PubsubSender publishes to a single topic.
type PubsubSender struct {
	publisher *pubsub.Publisher
}

func NewPubsubSender(client *pubsub.Client, topicID string) *PubsubSender {
	return &PubsubSender{publisher: client.Publisher(topicID)}
}

func (s *PubsubSender) Send(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	return s.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
}

// Stop flushes pending messages.
func (s *PubsubSender) Stop() {
	s.publisher.Stop()
}

// rotationEvent is the published wire shape.
type rotationEvent struct {
	EventID       string    `json:"event_id"`
	DeviceID      string    `json:"device_id"`
	PreviousToken string    `json:"previous_token"`
	CurrentToken  string    `json:"current_token"`
	RotatedAt     time.Time `json:"rotated_at"`
}

// RotationPublisher is a push.RotationListener that forwards each rotation
// to a Sender.
type RotationPublisher struct {
	sender Sender
	logger *slog.Logger
}

func NewRotationPublisher(sender Sender, logger *slog.Logger) *RotationPublisher {
	return &RotationPublisher{
		sender: sender,
		logger: logger.With("component", "RotationPublisher"),
	}
}

func (p *RotationPublisher) OnTokenRotated(ctx context.Context, event push.TokenRotation) error {
	payload, err := json.Marshal(rotationEvent{
		EventID:       event.ID,
		DeviceID:      event.DeviceID,
		PreviousToken: event.Previous.Value,
		CurrentToken:  event.Current.Value,
		RotatedAt:     event.RotatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal rotation event: %w", err)
	}

	serverID, err := p.sender.Send(ctx, payload, map[string]string{
		"event_type": "token.rotated",
		"device_id":  event.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("publish rotation event %s: %w", event.ID, err)
	}

	p.logger.Debug("Rotation event published", "event_id", event.ID, "server_id", serverID)
	return nil
}
