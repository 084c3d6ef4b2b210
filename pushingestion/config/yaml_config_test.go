package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-ingestion-service/pushingestion/config"
)

const sampleYaml = `
project_id: yaml-project
listen_addr: ":9000"
topic_id: yaml-topic
subscription_id: yaml-subscription
subscription_dlq_topic_id: yaml-dlq
num_pipeline_workers: 5
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
dedup:
  backend: memory
  retention: 15m
  compact_threshold: 512
  max_records: 1000
dispatch:
  handler_timeout: 2s
  max_concurrent_handlers: 3
tokens:
  backend: firestore
  cache_ttl: 1h
rotation:
  topic_id: token-rotations
  fcm_topics: [news]
webhooks:
  - name: audit
    url: http://audit.local/hook
    headers:
      X-Api-Key: secret
`

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYaml), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		// 2. CORS
		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		// 3. Durations and knobs
		assert.Equal(t, 15*time.Minute, cfg.Dedup.Retention)
		assert.Equal(t, 512, cfg.Dedup.CompactThreshold)
		assert.Equal(t, 1000, cfg.Dedup.MaxRecords)
		assert.Equal(t, 2*time.Second, cfg.Dispatch.HandlerTimeout)
		assert.Equal(t, 3, cfg.Dispatch.MaxConcurrentHandlers)
		assert.Equal(t, config.BackendFirestore, cfg.Tokens.Backend)
		assert.Equal(t, time.Hour, cfg.Tokens.CacheTTL)

		// 4. Rotation and webhooks
		assert.Equal(t, "token-rotations", cfg.Rotation.TopicID)
		assert.Equal(t, []string{"news"}, cfg.Rotation.FCMTopics)
		require.Len(t, cfg.Webhooks, 1)
		assert.Equal(t, "audit", cfg.Webhooks[0].Name)
		assert.Equal(t, "secret", cfg.Webhooks[0].Headers["X-Api-Key"])

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:      "minimal-project",
			SubscriptionID: "minimal-sub",
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Zero(t, cfg.Dedup.Retention)
		assert.Empty(t, cfg.Webhooks)
	})

	t.Run("Failure - Bad duration", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:      "p",
			SubscriptionID: "s",
			DispatchConfig: config.YamlDispatchConfig{HandlerTimeout: "soon"},
		}

		_, err := config.NewConfigFromYaml(yamlCfg, logger)
		assert.ErrorContains(t, err, "dispatch.handler_timeout")
	})
}
