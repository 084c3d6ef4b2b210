// Package pushingestion assembles the ingestion pipeline and HTTP surface
// into a runnable service.
package pushingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/api"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/ingest"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/pipeline"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
	"github.com/tinywideclouds/go-push-ingestion-service/pushingestion/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[push.Message]
	logger          *slog.Logger
}

// New assembles the service around an already-wired Ingestor.
// metricsHandler and history may be nil.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	ingestor *ingest.Ingestor,
	history api.HistoryReader,
	metricsHandler http.Handler,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(ingestor, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.MessageTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	tokenAPI := api.NewTokenAPI(ingestor, history, logger)
	messageAPI := api.NewMessageAPI(ingestor, logger)

	if authMiddleware == nil {
		authMiddleware = func(h http.Handler) http.Handler { return h }
	}

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	protected := func(h http.HandlerFunc) http.Handler {
		return corsMiddleware(authMiddleware(h))
	}
	preflight := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	mux.Handle("OPTIONS /api/v1/tokens", preflight)
	mux.Handle("OPTIONS /api/v1/tokens/{device}", preflight)
	mux.Handle("PUT /api/v1/tokens", protected(tokenAPI.RegisterTokenHandler))
	mux.Handle("GET /api/v1/tokens/{device}", protected(tokenAPI.GetTokenHandler))
	mux.Handle("POST /api/v1/messages", protected(messageAPI.IngestMessageHandler))
	mux.Handle("GET /api/v1/deliveries", protected(messageAPI.ListDeliveriesHandler))

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
