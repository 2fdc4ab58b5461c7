package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/api/device_api"
	"github.com/RadiaWorks/ScanGate/internal/barcode"
	"github.com/RadiaWorks/ScanGate/internal/broker/messages"
	"github.com/RadiaWorks/ScanGate/internal/correlation"
	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/RadiaWorks/ScanGate/internal/services/components"
	"github.com/RadiaWorks/ScanGate/internal/services/devices"
	"github.com/RadiaWorks/ScanGate/internal/services/dispatch"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) WriteManufacturingDate(ctx context.Context, serial string) (bool, error) {
	return true, nil
}
func (r *fakeRepo) WriteSaleDate(ctx context.Context, serial string) (bool, error) {
	return true, nil
}
func (r *fakeRepo) EnqueueScan(ctx context.Context, serial, barcodeType, scannerID string) error {
	return nil
}
func (r *fakeRepo) ReadManufacturingDate(ctx context.Context, serial string) (*time.Time, bool, error) {
	return nil, false, nil
}
func (r *fakeRepo) ReadAllFields(ctx context.Context, serial string) (*models.Device, error) {
	return nil, nil
}
func (r *fakeRepo) GetRecentDevices(ctx context.Context, window time.Duration, limit int) ([]*models.Device, error) {
	return nil, nil
}

type fakeConsumer struct{}

func (c fakeConsumer) ConsumeScans(ctx context.Context, handler func(ctx context.Context, m messages.ScanMessage) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestApp() (*device_api.API, *dispatch.Service) {
	repo := &fakeRepo{}
	store := correlation.New(correlation.DefaultTimeout, nil)
	dispatcher := dispatch.New(repo, store, barcode.NewValidator(barcode.DefaultRules()...), nil,
		[]string{"production/ready", "sale/ready"}, "RC-", 13)
	dev := devices.New(repo, nil, 0, time.Hour)
	api := device_api.New(dispatcher, dev, components.New(nil), nil, 0)
	return api, dispatcher
}

func TestRunScanGateAPI_ServesSwaggerAndWebhook(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	api, dispatcher := newTestApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := scanGateAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "device.scans",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runScanGateAPI(ctx, opts, api, dispatcher, fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"topic":   "production/ready",
		"payload": `{"msg":"RC-102-011243","id":"dev1"}`,
	}))
	resp, err = http.Post("http://"+httpAddr+"/webhook/device", "application/json", &buf)
	require.NoError(t, err)
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(out), "RC-102-011243")

	cancel()
	select {
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestRunScanGateAPI_MissingSwaggerFile(t *testing.T) {
	api, dispatcher := newTestApp()
	err := runScanGateAPI(context.Background(), scanGateAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: "/nonexistent/swagger.json",
	}, api, dispatcher, fakeConsumer{})
	require.Error(t, err)
}
