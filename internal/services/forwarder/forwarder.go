package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/broker/messages"
	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory"
	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimUnprocessedScans(ctx context.Context, maxAge time.Duration, limit int, sessionID string) ([]*models.ScanRecord, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Forwarder drains the scan queue: claims unprocessed sale scans in batches,
// pushes RC devices to the inventory system and publishes a lifecycle event
// per scan.
type Forwarder struct {
	repo      Repository
	inventory inventory.Client
	producer  Producer
	rl        RateLimiter

	topic string

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	maxScanAge         time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalForwarded      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, inv inventory.Client, producer Producer, rl RateLimiter, topic string) *Forwarder {
	return &Forwarder{
		repo: repo, inventory: inv, producer: producer, rl: rl, topic: topic,
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		maxScanAge:         time.Hour,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (f *Forwarder) WithSettings(pollInterval time.Duration, batchSize, concurrency int, maxScanAge time.Duration, rlPerMin int64) *Forwarder {
	if pollInterval > 0 {
		f.pollInterval = pollInterval
	}
	if batchSize > 0 {
		f.batchSize = batchSize
	}
	if concurrency > 0 {
		f.concurrency = concurrency
	}
	if maxScanAge > 0 {
		f.maxScanAge = maxScanAge
	}
	if rlPerMin > 0 {
		f.rateLimitPerMinute = rlPerMin
	}
	return f
}

// Trigger forces an immediate drain cycle (best-effort, non-blocking).
func (f *Forwarder) Trigger() {
	f.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case f.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalForwarded int64      `json:"totalForwarded"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (f *Forwarder) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, f.startedAtUnixNano).UTC(),
		TotalClaimed:   f.totalClaimed.Load(),
		TotalForwarded: f.totalForwarded.Load(),
		TotalErrors:    f.totalErrors.Load(),
		InFlight:       f.inFlight.Load(),
	}
	if n := f.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := f.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	f.lastErrorMu.Lock()
	st.LastError = f.lastError
	f.lastErrorMu.Unlock()
	return st
}

func (f *Forwarder) Run(ctx context.Context) error {
	t := time.NewTicker(f.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			f.runOnce(ctx)
		case <-f.triggerCh:
			f.runOnce(ctx)
		}
	}
}

func (f *Forwarder) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	f.lastCycleUnixNano.Store(now.UnixNano())

	sessionID := uuid.NewString()
	scans, err := f.repo.ClaimUnprocessedScans(ctx, f.maxScanAge, f.batchSize, sessionID)
	if err != nil {
		slog.Error("claim unprocessed scans", "error", err.Error())
		f.recordError(err)
		return
	}
	f.totalClaimed.Add(int64(len(scans)))

	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup
	for _, sc := range scans {
		sem <- struct{}{}
		wg.Add(1)
		scCopy := sc
		f.inFlight.Add(1)
		go func() {
			defer func() {
				f.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := f.processOne(ctx, scCopy); err != nil {
				f.totalErrors.Add(1)
				f.recordError(err)
				slog.Error("forward scan", "scan_id", scCopy.ID, "serial", scCopy.Serial, "error", err.Error())
				return
			}
			f.totalForwarded.Add(1)
		}()
	}
	wg.Wait()
}

func (f *Forwarder) processOne(ctx context.Context, sc *models.ScanRecord) error {
	now := time.Now().UTC()

	if f.rl != nil && f.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:scanner:%s:%s", sc.ScannerID, now.Format("200601021504"))
		allowed, n, err := f.rl.Allow(ctx, minuteKey, f.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			// Limiter outage must not stall the queue; fail open.
			slog.Warn("rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			slog.Warn("scanner rate limit exceeded", "scanner_id", sc.ScannerID, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	if sc.BarcodeType == "RC" && f.inventory != nil {
		res, err := f.inventory.Send(ctx, sc.Serial, map[string]any{
			"scanner_id": sc.ScannerID,
			"scanned_at": sc.ScannedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			slog.Warn("inventory forward failed", "serial", sc.Serial, "error", err.Error())
		} else if !res.Success {
			slog.Warn("inventory rejected device", "serial", sc.Serial, "message", res.Message)
		}
	}

	evt := messages.DeviceLifecycleEvent{
		Serial:      sc.Serial,
		Operation:   "sale",
		Topic:       "sale/ready",
		BarcodeType: sc.BarcodeType,
		ScannerID:   sc.ScannerID,
		OccurredAt:  sc.ScannedAt.UTC(),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal lifecycle event")
	}

	// Kafka may not be ready right after compose start; retry briefly.
	var pubErr error
	for i := 0; i < 10; i++ {
		if pubErr = f.producer.Publish(ctx, f.topic, []byte(sc.Serial), b); pubErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return pubErr
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}

func (f *Forwarder) recordError(err error) {
	f.lastErrorMu.Lock()
	f.lastError = err.Error()
	f.lastErrorMu.Unlock()
}
