package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	ScanGate ScanGateConfig `yaml:"scangate"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	ScanTopicName           string `yaml:"scan_topic_name"`
	LifecycleEventTopicName string `yaml:"lifecycle_event_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ScanGateConfig struct {
	HTTPAddr           string   `yaml:"http_addr"`
	KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`
	AllowedTopics      []string `yaml:"allowed_topics"`

	BarcodePrefix    string `yaml:"barcode_prefix"`
	MinBarcodeLength int    `yaml:"min_barcode_length"`

	PendingOrderTimeoutSeconds int `yaml:"pending_order_timeout_seconds"`
	FreshnessWindowSeconds     int `yaml:"freshness_window_seconds"`
	DeviceCacheTTLSeconds      int `yaml:"device_cache_ttl_seconds"`

	WebhookRateLimitPerMinute int `yaml:"webhook_rate_limit_per_minute"`

	InventoryBaseURL string `yaml:"inventory_base_url"`
	InventoryToken   string `yaml:"inventory_token"`

	CatalogBaseURL      string `yaml:"catalog_base_url"`
	CatalogClientID     string `yaml:"catalog_client_id"`
	CatalogClientSecret string `yaml:"catalog_client_secret"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerRateLimitPerMinute  int    `yaml:"worker_rate_limit_per_minute"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
