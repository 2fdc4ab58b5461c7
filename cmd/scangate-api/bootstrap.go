package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RadiaWorks/ScanGate/config"
	"github.com/RadiaWorks/ScanGate/internal/api/device_api"
	"github.com/RadiaWorks/ScanGate/internal/barcode"
	"github.com/RadiaWorks/ScanGate/internal/broker/kafka"
	"github.com/RadiaWorks/ScanGate/internal/cache/rediscache"
	"github.com/RadiaWorks/ScanGate/internal/correlation"
	"github.com/RadiaWorks/ScanGate/internal/integrations/catalog"
	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory/inventoryhttp"
	"github.com/RadiaWorks/ScanGate/internal/services/components"
	"github.com/RadiaWorks/ScanGate/internal/services/devices"
	"github.com/RadiaWorks/ScanGate/internal/services/dispatch"
	"github.com/RadiaWorks/ScanGate/internal/storage/pgdevice"
)

type scanGateAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   scanGateAPIOpts

	api        *device_api.API
	dispatcher *dispatch.Service
	consumer   *kafka.ScanConsumer
	closeDB    func()
}

func mustBootstrapScanGateAPI() *scanGateAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	httpAddr := cfg.ScanGate.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ScanGate.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "scangate-api"
	}
	topic := cfg.Kafka.ScanTopicName
	if topic == "" {
		topic = "device.scans"
	}
	allowedTopics := cfg.ScanGate.AllowedTopics
	if len(allowedTopics) == 0 {
		allowedTopics = []string{"production/ready", "sale/ready"}
	}

	pendingTimeout := time.Duration(cfg.ScanGate.PendingOrderTimeoutSeconds) * time.Second
	freshness := time.Duration(cfg.ScanGate.FreshnessWindowSeconds) * time.Second
	if freshness <= 0 {
		freshness = time.Hour
	}
	cacheTTL := time.Duration(cfg.ScanGate.DeviceCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	store := correlation.New(pendingTimeout, st)
	validator := barcode.NewValidator(barcode.DefaultRules()...)
	inv := inventoryhttp.New(cfg.ScanGate.InventoryBaseURL, cfg.ScanGate.InventoryToken)

	dispatcher := dispatch.New(st, store, validator, inv,
		allowedTopics, cfg.ScanGate.BarcodePrefix, cfg.ScanGate.MinBarcodeLength)
	dev := devices.New(st, rc, cacheTTL, freshness)
	comp := components.New(catalog.New(cfg.ScanGate.CatalogBaseURL, cfg.ScanGate.CatalogClientID, cfg.ScanGate.CatalogClientSecret))

	api := device_api.New(dispatcher, dev, comp, rl, int64(cfg.ScanGate.WebhookRateLimitPerMinute))

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewScanConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &scanGateAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: scanGateAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		api:        api,
		dispatcher: dispatcher,
		consumer:   consumer,
		closeDB:    st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgdevice.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgdevice.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *scanGateAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *scanGateAPIApp) Run() error {
	return runScanGateAPI(a.ctx, a.opts, a.api, a.dispatcher, a.consumer)
}
