package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/api/device_api"
	"github.com/RadiaWorks/ScanGate/internal/broker/messages"
	"github.com/RadiaWorks/ScanGate/internal/services/dispatch"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type scanGateAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	ConsumeScans(ctx context.Context, handler func(ctx context.Context, m messages.ScanMessage) error) error
}

func runScanGateAPI(ctx context.Context, opts scanGateAPIOpts, api *device_api.API, dispatcher *dispatch.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	r.Mount("/", api.Router())

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	// Broker-delivered scans flow through the same dispatcher as webhooks.
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.ConsumeScans(ctx, func(ctx context.Context, m messages.ScanMessage) error {
			resp := dispatcher.Handle(ctx, m.Topic, m.Payload, "kafka")
			if resp.Status != 200 {
				slog.Warn("broker scan rejected", "topic", m.Topic, "status", resp.Status, "body", resp.Body)
			}
			return nil
		})
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
