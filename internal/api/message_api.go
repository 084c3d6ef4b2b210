package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// MessageService is what the message endpoints need from the service core.
type MessageService interface {
	HandleMessage(ctx context.Context, msg push.Message) (push.DeliveryRecord, error)
	RecentDeliveries() []push.DeliveryRecord
}

type MessageAPI struct {
	Messages MessageService
	Logger   *slog.Logger
}

func NewMessageAPI(messages MessageService, logger *slog.Logger) *MessageAPI {
	return &MessageAPI{
		Messages: messages,
		Logger:   logger.With("component", "MessageAPI"),
	}
}

type IngestMessageRequest struct {
	MessageID string            `json:"message_id"`
	Data      map[string]string `json:"data"`
}

// IngestMessageHandler handles POST /api/v1/messages and replies with the
// resulting DeliveryRecord. Every terminal outcome is a 200.
func (api *MessageAPI) IngestMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req IngestMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	record, err := api.Messages.HandleMessage(r.Context(), push.Message{
		ID:      req.MessageID,
		Payload: req.Data,
	})
	if err != nil {
		writeError(w, api.Logger, "ingest message", err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ListDeliveriesHandler handles GET /api/v1/deliveries.
func (api *MessageAPI) ListDeliveriesHandler(w http.ResponseWriter, _ *http.Request) {
	records := api.Messages.RecentDeliveries()
	if records == nil {
		records = []push.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
