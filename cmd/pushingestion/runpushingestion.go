package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	firebase "firebase.google.com/go/v4"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/dedup"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/dispatch"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/events"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/handlers"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/ingest"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/metrics"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-push-ingestion-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/storage/memory"
	"github.com/tinywideclouds/go-push-ingestion-service/internal/tokens"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
	"github.com/tinywideclouds/go-push-ingestion-service/pushingestion"
	"github.com/tinywideclouds/go-push-ingestion-service/pushingestion/config"
)

//go:embed local.yaml
var configFile []byte

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred client closes always run.
func run() int {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-ingestion-service")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		return 1
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		return 1
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		return 1
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		return 1
	}
	defer psClient.Close()

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		logger.Info("Connecting to Redis...", "addr", cfg.Redis.Addr)
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			return 1
		}
		defer redisClient.Close()
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serviceMetrics := metrics.New(registry)

	// --- Token Store (Decorated) ---
	var repo tokens.Repository = memory.NewTokenStore()
	if cfg.Tokens.Backend == config.BackendFirestore {
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("Firestore client failed", "err", err)
			return 1
		}
		defer fsClient.Close()
		repo = fsStore.NewFirestoreStore(fsClient)

		if redisClient != nil {
			repo = cache.NewCachedTokenStore(repo, redisClient, cfg.Tokens.CacheTTL, logger)
			logger.Info("TokenStore upgraded", "type", "redis_cached_firestore")
		}
	}
	logger.Info("TokenStore initialized", "backend", cfg.Tokens.Backend)

	tracker := tokens.NewTracker(repo, logger)
	tracker.AddListener("metrics", serviceMetrics)

	// --- Rotation Listeners ---
	if cfg.Rotation.TopicID != "" {
		sender := events.NewPubsubSender(psClient, cfg.Rotation.TopicID)
		defer sender.Stop()
		tracker.AddListener("pubsub", events.NewRotationPublisher(sender, logger))
		logger.Info("Rotation events enabled", "topic", cfg.Rotation.TopicID)
	}
	if len(cfg.Rotation.FCMTopics) > 0 {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			logger.Error("Failed to initialize Firebase App", "err", err)
			return 1
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Error("Failed to create FCM messaging client", "err", err)
			return 1
		}
		tracker.AddListener("fcm-topics", fcm.NewTopicSync(fcmMessaging, cfg.Rotation.FCMTopics, logger))
		logger.Info("FCM topic sync enabled", "topics", cfg.Rotation.FCMTopics)
	}

	// --- Dedup ---
	dedupCfg := dedup.Config{Retention: cfg.Dedup.Retention, CompactThreshold: cfg.Dedup.CompactThreshold}
	var deduplicator push.Deduplicator = dedup.NewWindow(dedupCfg, logger)
	if cfg.Dedup.Backend == config.BackendRedis {
		deduplicator = dedup.NewRedisWindow(redisClient, "push", cfg.Dedup.Retention)
	}
	logger.Info("Deduplicator initialized", "backend", cfg.Dedup.Backend)

	// --- Dispatcher ---
	dispatcher := dispatch.New(dispatch.Config{
		HandlerTimeout:        cfg.Dispatch.HandlerTimeout,
		MaxConcurrentHandlers: cfg.Dispatch.MaxConcurrentHandlers,
		DisableDefaultHandler: cfg.Dispatch.DisableDefaultHandler,
	}, logger)
	for _, wh := range cfg.Webhooks {
		dispatcher.Register(wh.Name, handlers.NewWebhook(handlers.WebhookConfig{
			Name:    wh.Name,
			URL:     wh.URL,
			Headers: wh.Headers,
		}, logger))
	}
	logger.Info("Dispatcher initialized", "handlers", dispatcher.Handlers())

	ingestor := ingest.NewIngestor(
		deduplicator,
		dispatcher,
		dedup.NewRecordLog(dedupCfg, cfg.Dedup.MaxRecords),
		tracker,
		serviceMetrics,
		logger,
	)

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT config discovery failed", "err", err)
		return 1
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		return 1
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		return 1
	}

	service, err := pushingestion.New(
		cfg,
		consumer,
		ingestor,
		tracker,
		serviceMetrics.Handler(),
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		return 1
	}

	logger.Info("Starting service...")
	errChan := make(chan error, 1)
	go func() {
		errChan <- service.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			logger.Error("Service stopped with error", "err", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "err", err)
		exitCode = 1
	}

	return exitCode
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 10},
		},
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
