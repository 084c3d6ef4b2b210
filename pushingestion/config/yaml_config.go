package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlDedupConfig struct {
	Backend          string `yaml:"backend"`
	Retention        string `yaml:"retention"`
	CompactThreshold int    `yaml:"compact_threshold"`
	MaxRecords       int    `yaml:"max_records"`
}

type YamlDispatchConfig struct {
	HandlerTimeout        string `yaml:"handler_timeout"`
	MaxConcurrentHandlers int    `yaml:"max_concurrent_handlers"`
	DisableDefaultHandler bool   `yaml:"disable_default_handler"`
}

type YamlTokenConfig struct {
	Backend  string `yaml:"backend"`
	CacheTTL string `yaml:"cache_ttl"`
}

type YamlRotationConfig struct {
	TopicID   string   `yaml:"topic_id"`
	FCMTopics []string `yaml:"fcm_topics"`
}

type YamlWebhookConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string              `yaml:"project_id"`
	ListenAddr             string              `yaml:"listen_addr"`
	TopicID                string              `yaml:"topic_id"`
	SubscriptionID         string              `yaml:"subscription_id"`
	SubscriptionDLQTopicID string              `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig      `yaml:"cors"`
	RedisConfig            YamlRedisConfig     `yaml:"redis"`
	DedupConfig            YamlDedupConfig     `yaml:"dedup"`
	DispatchConfig         YamlDispatchConfig  `yaml:"dispatch"`
	TokenConfig            YamlTokenConfig     `yaml:"tokens"`
	RotationConfig         YamlRotationConfig  `yaml:"rotation"`
	Webhooks               []YamlWebhookConfig `yaml:"webhooks"`
	NumPipelineWorkers     int                 `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	retention, err := parseOptionalDuration("dedup.retention", baseCfg.DedupConfig.Retention)
	if err != nil {
		return nil, err
	}
	handlerTimeout, err := parseOptionalDuration("dispatch.handler_timeout", baseCfg.DispatchConfig.HandlerTimeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseOptionalDuration("tokens.cache_ttl", baseCfg.TokenConfig.CacheTTL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Dedup: DedupConfig{
			Backend:          baseCfg.DedupConfig.Backend,
			Retention:        retention,
			CompactThreshold: baseCfg.DedupConfig.CompactThreshold,
			MaxRecords:       baseCfg.DedupConfig.MaxRecords,
		},
		Dispatch: DispatchConfig{
			HandlerTimeout:        handlerTimeout,
			MaxConcurrentHandlers: baseCfg.DispatchConfig.MaxConcurrentHandlers,
			DisableDefaultHandler: baseCfg.DispatchConfig.DisableDefaultHandler,
		},
		Tokens: TokenConfig{
			Backend:  baseCfg.TokenConfig.Backend,
			CacheTTL: cacheTTL,
		},
		Rotation: RotationConfig{
			TopicID:   baseCfg.RotationConfig.TopicID,
			FCMTopics: baseCfg.RotationConfig.FCMTopics,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	for _, wh := range baseCfg.Webhooks {
		cfg.Webhooks = append(cfg.Webhooks, WebhookConfig{Name: wh.Name, URL: wh.URL, Headers: wh.Headers})
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"dedup_backend", cfg.Dedup.Backend,
		"token_backend", cfg.Tokens.Backend,
	)

	return cfg, nil
}

// Zero means "use the component default".
func parseOptionalDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
