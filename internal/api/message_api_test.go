package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/api"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) HandleMessage(ctx context.Context, msg push.Message) (push.DeliveryRecord, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(push.DeliveryRecord), args.Error(1)
}

func (m *MockMessageService) RecentDeliveries() []push.DeliveryRecord {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]push.DeliveryRecord)
}

func TestIngestMessage(t *testing.T) {
	body := []byte(`{"message_id":"m-1","data":{"k":"v"}}`)
	expected := push.Message{ID: "m-1", Payload: map[string]string{"k": "v"}}

	t.Run("Returns the delivery record", func(t *testing.T) {
		svc := new(MockMessageService)
		svc.On("HandleMessage", mock.Anything, expected).
			Return(push.DeliveryRecord{MessageID: "m-1", Outcome: push.OutcomeHandlerFailed}, nil)

		w := httptest.NewRecorder()
		api.NewMessageAPI(svc, newTestLogger()).
			IngestMessageHandler(w, httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		var rec push.DeliveryRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, push.OutcomeHandlerFailed, rec.Outcome)
	})

	t.Run("Invalid message is 400", func(t *testing.T) {
		svc := new(MockMessageService)
		svc.On("HandleMessage", mock.Anything, mock.Anything).
			Return(push.DeliveryRecord{}, fmt.Errorf("%w: missing message id", push.ErrInvalidMessage))

		w := httptest.NewRecorder()
		api.NewMessageAPI(svc, newTestLogger()).
			IngestMessageHandler(w, httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader([]byte(`{}`))))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Dedup storage outage is 503", func(t *testing.T) {
		svc := new(MockMessageService)
		svc.On("HandleMessage", mock.Anything, expected).
			Return(push.DeliveryRecord{}, fmt.Errorf("dedup check for m-1: %w", push.ErrStorageUnavailable))

		w := httptest.NewRecorder()
		api.NewMessageAPI(svc, newTestLogger()).
			IngestMessageHandler(w, httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader(body)))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("Malformed JSON is 400", func(t *testing.T) {
		svc := new(MockMessageService)

		w := httptest.NewRecorder()
		api.NewMessageAPI(svc, newTestLogger()).
			IngestMessageHandler(w, httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader([]byte("nope"))))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "HandleMessage", mock.Anything, mock.Anything)
	})
}

func TestListDeliveries(t *testing.T) {
	svc := new(MockMessageService)
	svc.On("RecentDeliveries").Return(nil)

	w := httptest.NewRecorder()
	api.NewMessageAPI(svc, newTestLogger()).
		ListDeliveriesHandler(w, httptest.NewRequest(http.MethodGet, "/api/v1/deliveries", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
