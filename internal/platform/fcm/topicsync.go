package fcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// TopicSync moves FCM topic subscriptions from a superseded token to its
// replacement. It is registered as a rotation listener.
type TopicSync struct {
	client MessagingClient
	topics []string
	logger *slog.Logger
}

func NewTopicSync(client MessagingClient, topics []string, logger *slog.Logger) *TopicSync {
	return &TopicSync{
		client: client,
		topics: topics,
		logger: logger.With("component", "FCMTopicSync"),
	}
}

func (s *TopicSync) OnTokenRotated(ctx context.Context, event push.TokenRotation) error {
	var errs []error
	for _, topic := range s.topics {
		if err := s.move(ctx, topic, event.Previous.Value, event.Current.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TopicSync) move(ctx context.Context, topic, oldToken, newToken string) error {
	resp, err := s.client.SubscribeToTopic(ctx, []string{newToken}, topic)
	if err != nil {
		return fmt.Errorf("fcm subscribe to %q failed: %w", topic, err)
	}
	if resp != nil && resp.FailureCount > 0 {
		return fmt.Errorf("fcm subscribe to %q rejected: %s", topic, reason(resp))
	}

	// The old token is frequently already unregistered; that is not an error.
	resp, err = s.client.UnsubscribeFromTopic(ctx, []string{oldToken}, topic)
	if err != nil {
		s.logger.Warn("Unsubscribe of superseded token failed", "topic", topic, "err", err)
		return nil
	}
	if resp != nil && resp.FailureCount > 0 {
		s.logger.Debug("Superseded token rejected by unsubscribe", "topic", topic, "reason", reason(resp))
	}
	return nil
}

func reason(resp *messaging.TopicManagementResponse) string {
	if len(resp.Errors) == 0 || resp.Errors[0] == nil {
		return "unknown"
	}
	return resp.Errors[0].Reason
}
