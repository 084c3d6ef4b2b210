package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// DedupConfig selects the duplicate-suppression window.
type DedupConfig struct {
	Backend          string
	Retention        time.Duration
	CompactThreshold int
	MaxRecords       int
}

type DispatchConfig struct {
	HandlerTimeout        time.Duration
	MaxConcurrentHandlers int
	DisableDefaultHandler bool
}

type TokenConfig struct {
	Backend  string
	CacheTTL time.Duration
}

// RotationConfig controls what happens when a device token is superseded.
type RotationConfig struct {
	TopicID   string
	FCMTopics []string
}

type WebhookConfig struct {
	Name    string
	URL     string
	Headers map[string]string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Dedup      DedupConfig
	Dispatch   DispatchConfig
	Tokens     TokenConfig
	Rotation   RotationConfig
	Webhooks   []WebhookConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Dedup / Dispatch Overrides
	if val := os.Getenv("DEDUP_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "DEDUP_BACKEND", "source", "env")
		cfg.Dedup.Backend = val
	}
	if val := os.Getenv("DEDUP_RETENTION"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DEDUP_RETENTION %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "DEDUP_RETENTION", "source", "env")
		cfg.Dedup.Retention = d
	}
	if val := os.Getenv("HANDLER_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid HANDLER_TIMEOUT %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "HANDLER_TIMEOUT", "source", "env")
		cfg.Dispatch.HandlerTimeout = d
	}
	if val := os.Getenv("MAX_CONCURRENT_HANDLERS"); val != "" {
		if slots, err := strconv.Atoi(val); err == nil && slots > 0 {
			logger.Debug("Overriding config value", "key", "MAX_CONCURRENT_HANDLERS", "source", "env")
			cfg.Dispatch.MaxConcurrentHandlers = slots
		}
	}

	// Token Overrides
	if val := os.Getenv("TOKEN_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "TOKEN_BACKEND", "source", "env")
		cfg.Tokens.Backend = val
	}
	if val := os.Getenv("ROTATION_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "ROTATION_TOPIC_ID", "source", "env")
		cfg.Rotation.TopicID = val
	}
	if val := os.Getenv("FCM_SYNC_TOPICS"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_SYNC_TOPICS", "source", "env")
		cfg.Rotation.FCMTopics = splitList(val)
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		cfg.CorsConfig.AllowedOrigins = splitList(corsOrigins)
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	if cfg.Dedup.Backend == "" {
		cfg.Dedup.Backend = BackendMemory
	}
	switch cfg.Dedup.Backend {
	case BackendMemory:
	case BackendRedis:
		if !cfg.Redis.Enabled {
			return nil, fmt.Errorf("dedup backend %q requires redis to be enabled", BackendRedis)
		}
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}

	if cfg.Tokens.Backend == "" {
		cfg.Tokens.Backend = BackendMemory
	}
	if cfg.Tokens.Backend != BackendMemory && cfg.Tokens.Backend != BackendFirestore {
		return nil, fmt.Errorf("unknown token backend %q", cfg.Tokens.Backend)
	}
	if cfg.Tokens.CacheTTL <= 0 {
		cfg.Tokens.CacheTTL = 24 * time.Hour
	}

	for _, wh := range cfg.Webhooks {
		if wh.Name == "" || wh.URL == "" {
			return nil, fmt.Errorf("webhook handlers need both name and url")
		}
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func splitList(raw string) []string {
	var clean []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}
