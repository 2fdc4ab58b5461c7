package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RadiaWorks/ScanGate/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	httpAddr := cfg.ScanGate.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunScanGateWorker(ctx, cfg, defaultWorkerFactories(), workerHTTPOpts{
		httpAddr:    httpAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	})
	if err != nil && err != context.Canceled {
		panic(err)
	}
}
