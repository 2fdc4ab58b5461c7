package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/broker/messages"
	invfake "github.com/RadiaWorks/ScanGate/internal/integrations/inventory/fake"
	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu    sync.Mutex
	topic string
	key   []byte
	value []byte
	calls int
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

type fakeRepo struct {
	mu    sync.Mutex
	scans []*models.ScanRecord
	calls int
	err   error
}

func (r *fakeRepo) ClaimUnprocessedScans(ctx context.Context, maxAge time.Duration, limit int, sessionID string) ([]*models.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := r.scans
	r.scans = nil
	return out, nil
}

func rcScan() *models.ScanRecord {
	return &models.ScanRecord{
		ID:          42,
		Serial:      "RC-102-011243",
		BarcodeType: "RC",
		ScannerID:   "dock-3",
		ScannedAt:   time.Now().UTC(),
	}
}

func TestForwarder_processOne_RCForwardsAndPublishes(t *testing.T) {
	fp := &fakeProducer{}
	inv := &invfake.Client{}
	f := New(nil, inv, fp, fakeRL{allowed: true}, "device.lifecycle")

	require.NoError(t, f.processOne(context.Background(), rcScan()))
	require.Equal(t, []string{"RC-102-011243"}, inv.Serials)
	require.Equal(t, 1, fp.calls)
	require.Equal(t, "device.lifecycle", fp.topic)
	require.Equal(t, []byte("RC-102-011243"), fp.key)

	var evt messages.DeviceLifecycleEvent
	require.NoError(t, json.Unmarshal(fp.value, &evt))
	require.Equal(t, "sale", evt.Operation)
	require.Equal(t, "RC", evt.BarcodeType)
	require.Equal(t, "dock-3", evt.ScannerID)
}

func TestForwarder_processOne_NonRCSkipsInventory(t *testing.T) {
	fp := &fakeProducer{}
	inv := &invfake.Client{}
	f := New(nil, inv, fp, nil, "device.lifecycle")

	sc := rcScan()
	sc.BarcodeType = "Amazon"
	sc.Serial = "FBA15DK7PZN"
	require.NoError(t, f.processOne(context.Background(), sc))
	require.Empty(t, inv.Serials)
	require.Equal(t, 1, fp.calls)
}

func TestForwarder_processOne_InventoryFailureStillPublishes(t *testing.T) {
	fp := &fakeProducer{}
	inv := &invfake.Client{Err: errors.New("inventory down")}
	f := New(nil, inv, fp, nil, "device.lifecycle")

	require.NoError(t, f.processOne(context.Background(), rcScan()))
	require.Equal(t, 1, fp.calls)
}

func TestForwarder_processOne_LimiterErrorFailsOpen(t *testing.T) {
	fp := &fakeProducer{}
	f := New(nil, &invfake.Client{}, fp, fakeRL{err: errors.New("redis down")}, "device.lifecycle")

	require.NoError(t, f.processOne(context.Background(), rcScan()))
	require.Equal(t, 1, fp.calls)
}

func TestForwarder_runOnce_CountsClaims(t *testing.T) {
	repo := &fakeRepo{scans: []*models.ScanRecord{rcScan()}}
	fp := &fakeProducer{}
	f := New(repo, &invfake.Client{}, fp, nil, "device.lifecycle")

	f.runOnce(context.Background())
	st := f.Stats()
	require.Equal(t, int64(1), st.TotalClaimed)
	require.Equal(t, int64(1), st.TotalForwarded)
	require.Equal(t, int64(0), st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestForwarder_runOnce_PublishFailureNotCountedAsForwarded(t *testing.T) {
	repo := &fakeRepo{scans: []*models.ScanRecord{rcScan()}}
	fp := &fakeProducer{err: errors.New("broker down")}
	f := New(repo, &invfake.Client{}, fp, nil, "device.lifecycle")

	// Canceled context short-circuits the publish retry backoff.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.runOnce(ctx)
	st := f.Stats()
	require.Equal(t, int64(1), st.TotalClaimed)
	require.Equal(t, int64(0), st.TotalForwarded)
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, "broker down", st.LastError)
}

func TestForwarder_runOnce_ClaimErrorRecorded(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	f := New(repo, nil, &fakeProducer{}, nil, "device.lifecycle")

	f.runOnce(context.Background())
	require.Equal(t, "db down", f.Stats().LastError)
}

func TestForwarder_WithSettings(t *testing.T) {
	f := New(nil, nil, &fakeProducer{}, nil, "t").
		WithSettings(5*time.Second, 7, 9, 11*time.Minute, 13)
	require.Equal(t, 5*time.Second, f.pollInterval)
	require.Equal(t, 7, f.batchSize)
	require.Equal(t, 9, f.concurrency)
	require.Equal(t, 11*time.Minute, f.maxScanAge)
	require.Equal(t, int64(13), f.rateLimitPerMinute)
}

func TestForwarder_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	f := New(repo, nil, &fakeProducer{}, nil, "t").
		WithSettings(5*time.Millisecond, 1, 1, time.Hour, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()
	err := f.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Greater(t, repo.calls, 0)
}

func TestForwarder_Trigger_NonBlocking(t *testing.T) {
	f := New(nil, nil, &fakeProducer{}, nil, "t")
	f.Trigger()
	f.Trigger() // second trigger must not block on the full channel
	require.NotNil(t, f.Stats().LastTriggerAt)
}
