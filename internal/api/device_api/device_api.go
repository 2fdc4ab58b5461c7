// Package device_api is the HTTP surface: the device/component webhooks plus
// the read endpoints used by line dashboards.
package device_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/services/components"
	"github.com/RadiaWorks/ScanGate/internal/services/devices"
	"github.com/RadiaWorks/ScanGate/internal/services/dispatch"
	"github.com/go-chi/chi/v5"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type API struct {
	dispatcher *dispatch.Service
	devices    *devices.Service
	components *components.Service

	rl                 RateLimiter
	rateLimitPerMinute int64

	totalWebhooks atomic.Int64
	totalAccepted atomic.Int64
	totalRejected atomic.Int64
}

func New(dispatcher *dispatch.Service, dev *devices.Service, comp *components.Service, rl RateLimiter, rateLimitPerMinute int64) *API {
	return &API{
		dispatcher:         dispatcher,
		devices:            dev,
		components:         comp,
		rl:                 rl,
		rateLimitPerMinute: rateLimitPerMinute,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/", a.handleHealth)
	r.Post("/webhook/device", a.handleDeviceWebhook)
	r.Post("/webhook/component", a.handleComponentWebhook)
	r.Get("/api/device/{serial}", a.handleGetDevice)
	r.Get("/api/devices", a.handleGetRecentDevices)
	r.Get("/api/getalldevices/{serial}", a.handleGetAllFields)
	r.Post("/api/check-status", a.handleCheckStatus)
	r.Get("/api/stats", a.handleStats)

	return r
}

type webhookRequest struct {
	Topic     string `json:"topic"`
	Payload   string `json:"payload"`
	ScannerID string `json:"scanner_id,omitempty"`
}

func (a *API) handleDeviceWebhook(w http.ResponseWriter, r *http.Request) {
	a.totalWebhooks.Add(1)

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.totalRejected.Add(1)
		writeJSON(w, 400, map[string]any{"error": "Invalid request body"})
		return
	}

	if !a.allowScanner(r, req.ScannerID) {
		a.totalRejected.Add(1)
		writeJSON(w, 429, map[string]any{"error": "Rate limit exceeded", "scanner_id": req.ScannerID})
		return
	}

	resp := a.dispatcher.Handle(r.Context(), req.Topic, req.Payload, req.ScannerID)
	if resp.Status == 200 {
		a.totalAccepted.Add(1)
		// A lifecycle write changes the read-model; drop the cached entry.
		if bc, ok := resp.Body["barcode"].(string); ok && bc != "" {
			a.devices.Invalidate(r.Context(), bc)
		}
	} else {
		a.totalRejected.Add(1)
	}
	writeJSON(w, resp.Status, resp.Body)
}

type componentRequest struct {
	Payload string `json:"payload"`
}

func (a *API) handleComponentWebhook(w http.ResponseWriter, r *http.Request) {
	var req componentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "Invalid request body"})
		return
	}

	comp, err := a.components.ProcessLabel(r.Context(), req.Payload)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, 200, comp)
}

func (a *API) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	st, err := a.devices.GetDevice(r.Context(), serial)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "Database error"})
		return
	}
	if st == nil {
		writeJSON(w, 404, map[string]any{"error": "Device not found", "serial": serial})
		return
	}
	writeJSON(w, 200, st)
}

func (a *API) handleGetRecentDevices(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	minutes, _ := strconv.Atoi(r.URL.Query().Get("minutes"))

	list, err := a.devices.GetRecentDevices(r.Context(), time.Duration(minutes)*time.Minute, limit)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "Database error"})
		return
	}
	writeJSON(w, 200, map[string]any{"devices": list, "count": len(list)})
}

func (a *API) handleGetAllFields(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	rec, err := a.devices.GetAllFields(r.Context(), serial)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "Database error"})
		return
	}
	if rec == nil {
		writeJSON(w, 404, map[string]any{"error": "Device not found", "serial": serial})
		return
	}
	writeJSON(w, 200, rec)
}

type checkStatusRequest struct {
	Barcode string `json:"barcode"`
}

func (a *API) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	var req checkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Barcode == "" {
		writeJSON(w, 400, map[string]any{"error": "barcode is required"})
		return
	}

	scanned, err := a.devices.CheckStatus(r.Context(), req.Barcode)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "Database error"})
		return
	}
	writeJSON(w, 200, map[string]any{"barcode": req.Barcode, "scanned": scanned})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"totalWebhooks": a.totalWebhooks.Load(),
		"totalAccepted": a.totalAccepted.Load(),
		"totalRejected": a.totalRejected.Load(),
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"status": "ok", "service": "scangate"})
}

// allowScanner enforces the per-scanner webhook budget. Limiter outages fail
// open: a redis blip must not stop the production line.
func (a *API) allowScanner(r *http.Request, scannerID string) bool {
	if a.rl == nil || a.rateLimitPerMinute <= 0 {
		return true
	}
	if scannerID == "" {
		scannerID = "unknown"
	}
	key := fmt.Sprintf("rl:webhook:%s:%s", scannerID, time.Now().UTC().Format("200601021504"))
	allowed, _, err := a.rl.Allow(r.Context(), key, a.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		return true
	}
	return allowed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
