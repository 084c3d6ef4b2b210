// Package api exposes the ingestion entry points over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// TokenService is what the token endpoints need from the service core.
type TokenService interface {
	HandleNewToken(ctx context.Context, device urn.URN, token string) error
	CurrentToken(ctx context.Context, device urn.URN) (push.Token, error)
}

// HistoryReader is optional; without it the lookup omits history.
type HistoryReader interface {
	History(ctx context.Context, device urn.URN) ([]push.Token, error)
}

type TokenAPI struct {
	Tokens  TokenService
	History HistoryReader
	Logger  *slog.Logger
}

func NewTokenAPI(tokens TokenService, history HistoryReader, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Tokens:  tokens,
		History: history,
		Logger:  logger.With("component", "TokenAPI"),
	}
}

type RegisterTokenRequest struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

type TokenResponse struct {
	Current push.Token   `json:"current"`
	History []push.Token `json:"history,omitempty"`
}

// RegisterTokenHandler handles PUT /api/v1/tokens. The caller's authenticated
// handle is the device identity; a device_id in the body may only repeat it.
func (api *TokenAPI) RegisterTokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	device, ok := api.authorizeDevice(w, r, req.DeviceID)
	if !ok {
		return
	}

	if err := api.Tokens.HandleNewToken(ctx, device, req.Token); err != nil {
		writeError(w, api.Logger, "register token", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTokenHandler handles GET /api/v1/tokens/{device}. Callers may only read
// their own device.
func (api *TokenAPI) GetTokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	device, ok := api.authorizeDevice(w, r, r.PathValue("device"))
	if !ok {
		return
	}

	current, err := api.Tokens.CurrentToken(ctx, device)
	if err != nil {
		writeError(w, api.Logger, "lookup token", err)
		return
	}

	resp := TokenResponse{Current: current}
	if api.History != nil {
		history, err := api.History.History(ctx, device)
		if err != nil {
			writeError(w, api.Logger, "lookup token history", err)
			return
		}
		resp.History = history
	}

	writeJSON(w, http.StatusOK, resp)
}

// authorizeDevice resolves the device a request acts on and checks that the
// authenticated handle owns it. An empty requested id means the caller's own
// device. On failure the response has been written.
func (api *TokenAPI) authorizeDevice(w http.ResponseWriter, r *http.Request, requested string) (urn.URN, bool) {
	handle, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok || handle == "" {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthenticated")
		return urn.URN{}, false
	}
	owner, err := urn.Parse(handle)
	if err != nil {
		api.Logger.Warn("Authenticated handle is not a urn", "handle", handle, "err", err)
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid identity")
		return urn.URN{}, false
	}
	if requested == "" {
		return owner, true
	}

	device, err := urn.Parse(requested)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid device id")
		return urn.URN{}, false
	}
	if device.String() != owner.String() {
		api.Logger.Warn("Device access denied", "caller", owner.String(), "device", device.String())
		response.WriteJSONError(w, http.StatusForbidden, "device not owned by caller")
		return urn.URN{}, false
	}
	return device, true
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "op", op, "err", err)
	} else {
		logger.Debug("Request rejected", "op", op, "err", err)
	}
	response.WriteJSONError(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, push.ErrInvalidToken):
		return http.StatusBadRequest, "invalid token"
	case errors.Is(err, push.ErrInvalidMessage):
		return http.StatusBadRequest, "invalid message"
	case errors.Is(err, push.ErrTokenNotFound):
		return http.StatusNotFound, "token not found"
	case errors.Is(err, push.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
