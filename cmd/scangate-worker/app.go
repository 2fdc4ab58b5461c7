package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RadiaWorks/ScanGate/config"
	"github.com/RadiaWorks/ScanGate/internal/broker/kafka"
	"github.com/RadiaWorks/ScanGate/internal/cache/rediscache"
	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory"
	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory/fake"
	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory/inventoryhttp"
	"github.com/RadiaWorks/ScanGate/internal/services/forwarder"
	"github.com/RadiaWorks/ScanGate/internal/storage/pgdevice"
	"golang.org/x/sync/errgroup"
)

type workerFactories struct {
	newStorage         func(cfg *config.Config) (repo forwarder.Repository, closeFn func(), err error)
	newProducer        func(cfg *config.Config) forwarder.Producer
	newRateLimiter     func(cfg *config.Config) forwarder.RateLimiter
	newInventoryClient func(cfg *config.Config) inventory.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (forwarder.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgdevice.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) forwarder.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) forwarder.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newInventoryClient: func(cfg *config.Config) inventory.Client {
			// Without an inventory endpoint configured, forwards go to the
			// in-process fake; useful for local compose runs.
			if cfg.ScanGate.InventoryBaseURL != "" {
				return inventoryhttp.New(cfg.ScanGate.InventoryBaseURL, cfg.ScanGate.InventoryToken)
			}
			return &fake.Client{}
		},
	}
}

func RunScanGateWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	topic := cfg.Kafka.LifecycleEventTopicName
	if topic == "" {
		topic = "device.lifecycle"
	}

	pollInterval := time.Duration(cfg.ScanGate.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.ScanGate.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.ScanGate.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	rlPerMin := int64(cfg.ScanGate.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	inv := f.newInventoryClient(cfg)

	fw := forwarder.New(repo, inv, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, time.Hour, rlPerMin)

	httpOpts.forwarder = fw
	httpOpts.cfg = cfg

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fw.Run(gctx) })
	g.Go(func() error { return runWorkerHTTPServer(gctx, httpOpts) })
	return g.Wait()
}
