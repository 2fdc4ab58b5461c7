package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  scan_topic_name: "device.scans"
  lifecycle_event_topic_name: "device.lifecycle"
redis:
  host: "localhost"
  port: 6379
scangate:
  http_addr: ":3000"
  kafka_consumer_group: "scangate-api"
  allowed_topics:
    - "production/ready"
    - "sale/ready"
  barcode_prefix: "RC-"
  min_barcode_length: 10
  pending_order_timeout_seconds: 10
  freshness_window_seconds: 3600
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "device.scans", cfg.Kafka.ScanTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":3000", cfg.ScanGate.HTTPAddr)
	require.Equal(t, []string{"production/ready", "sale/ready"}, cfg.ScanGate.AllowedTopics)
	require.Equal(t, 10, cfg.ScanGate.PendingOrderTimeoutSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/cfg.yaml")
	require.Error(t, err)
}
