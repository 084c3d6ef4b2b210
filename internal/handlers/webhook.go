// Package handlers provides application handlers that can be registered with
// the delivery dispatcher.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// WebhookConfig describes one forwarding target.
type WebhookConfig struct {
	Name    string
	URL     string
	Headers map[string]string
}

// Webhook forwards each message as JSON to an HTTP endpoint.
type Webhook struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhook(cfg WebhookConfig, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:     cfg.URL,
		headers: cfg.Headers,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    5,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: logger.With("component", "WebhookHandler", "name", cfg.Name),
	}
}

type webhookBody struct {
	MessageID  string            `json:"message_id"`
	Data       map[string]string `json:"data"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Handle posts msg to the endpoint. Any non-2xx response is a failure; the
// dispatcher's context deadline bounds the request.
func (h *Webhook) Handle(ctx context.Context, msg push.Message) error {
	body, err := json.Marshal(webhookBody{
		MessageID:  msg.ID,
		Data:       msg.Payload,
		ReceivedAt: msg.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook transport failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Warn("Webhook rejected message", "message_id", msg.ID, "status", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
