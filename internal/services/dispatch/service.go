package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/barcode"
	"github.com/RadiaWorks/ScanGate/internal/correlation"
	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory"
	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/RadiaWorks/ScanGate/internal/payload"
)

const (
	defaultBarcodePrefix = "RC-"
	defaultMinBarcodeLen = 13
)

// Repository is the persistence slice the dispatcher needs. Transient storage
// failures surface as (false, err) and map to a 500 at this boundary; they
// never panic past it.
type Repository interface {
	WriteManufacturingDate(ctx context.Context, serial string) (bool, error)
	WriteSaleDate(ctx context.Context, serial string) (bool, error)
	EnqueueScan(ctx context.Context, serial, barcodeType, scannerID string) error
}

// Response is transport-neutral: the HTTP handler and the kafka consumer both
// render it, one as a status+JSON reply, the other as a log line.
type Response struct {
	Status int
	Body   map[string]any
}

type Service struct {
	repo          Repository
	store         *correlation.Store
	validator     *barcode.Validator
	inventory     inventory.Client
	allowedTopics []string
	barcodePrefix string
	minBarcodeLen int
}

func New(repo Repository, store *correlation.Store, v *barcode.Validator, inv inventory.Client, allowedTopics []string, barcodePrefix string, minBarcodeLen int) *Service {
	if barcodePrefix == "" {
		barcodePrefix = defaultBarcodePrefix
	}
	if minBarcodeLen <= 0 {
		minBarcodeLen = defaultMinBarcodeLen
	}
	return &Service{
		repo:          repo,
		store:         store,
		validator:     v,
		inventory:     inv,
		allowedTopics: allowedTopics,
		barcodePrefix: barcodePrefix,
		minBarcodeLen: minBarcodeLen,
	}
}

// Handle runs one webhook message through authorize -> sweep -> classify ->
// branch. Every path returns a Response; no error escapes to the transport.
func (s *Service) Handle(ctx context.Context, topic, rawPayload, scannerID string) Response {
	if !s.topicAllowed(topic) {
		slog.Warn("topic rejected", "topic", topic)
		return Response{Status: 403, Body: map[string]any{
			"error": "Topic not allowed",
			"topic": topic,
		}}
	}

	s.store.SweepExpired()

	cls := payload.Classify(rawPayload, s.store.HasPending)

	switch cls.Category {
	case payload.CategoryValidRCFormat:
		return s.handleLifecycleWrite(ctx, topic, cls, scannerID)

	case payload.CategoryFedExWarehouse, payload.CategoryNonFedExWarehouse:
		return s.registerPending(topic, cls, orderTypeFor(cls.Category))

	case payload.CategoryUPSCode:
		deviceID := bodyID(cls.Body)
		if deviceID != "" && s.store.HasPending(deviceID) {
			return s.resolvePending(ctx, deviceID, cls.Body)
		}
		return s.registerPending(topic, cls, models.OrderTypeUPSCode)

	case payload.CategoryTrackingCode:
		return s.resolvePending(ctx, bodyID(cls.Body), cls.Body)

	case payload.CategoryIncorrectFormat:
		// Recovery path: a malformed follow-up may still carry the device id
		// of a pending order; try it as a resolution before rejecting.
		if body := parseObject(rawPayload); body != nil {
			if deviceID := bodyID(body); deviceID != "" && s.store.HasPending(deviceID) {
				return s.resolvePending(ctx, deviceID, body)
			}
		}
		return Response{Status: 400, Body: map[string]any{"error": "Invalid payload format"}}

	case payload.CategoryInvalidRCFormat:
		return Response{Status: 400, Body: map[string]any{"error": cls.Message}}
	}

	slog.Error("unreachable payload category", "category", string(cls.Category))
	return Response{Status: 400, Body: map[string]any{"error": "Unknown payload status"}}
}

func (s *Service) topicAllowed(topic string) bool {
	if topic == "" {
		return false
	}
	for _, allowed := range s.allowedTopics {
		if topic == allowed || strings.HasPrefix(allowed, topic) {
			return true
		}
	}
	return false
}

func (s *Service) handleLifecycleWrite(ctx context.Context, topic string, cls payload.Classification, scannerID string) Response {
	bc := cls.Barcode
	if !strings.HasPrefix(bc, s.barcodePrefix) || len(bc) < s.minBarcodeLen {
		return Response{Status: 400, Body: map[string]any{
			"error":   "Barcode failed prefix/length check",
			"barcode": bc,
		}}
	}

	var (
		operation string
		updated   bool
		err       error
	)
	switch {
	case strings.HasPrefix(topic, "production"):
		operation = "manufacturing"
		updated, err = s.repo.WriteManufacturingDate(ctx, bc)
	case strings.HasPrefix(topic, "sale"):
		operation = "sale"
		updated, err = s.repo.WriteSaleDate(ctx, bc)
	default:
		return Response{Status: 400, Body: map[string]any{
			"error": "No lifecycle operation for topic",
			"topic": topic,
		}}
	}

	if err != nil {
		slog.Error("lifecycle write failed", "barcode", bc, "operation", operation, "error", err.Error())
		updated = false
	}
	if !updated {
		return Response{Status: 500, Body: map[string]any{
			"error":     "Database write failed",
			"barcode":   bc,
			"operation": operation,
		}}
	}

	if operation == "sale" {
		s.runSaleFlow(ctx, bc, scannerID)
	}

	return Response{Status: 200, Body: map[string]any{
		"barcode":   bc,
		"topic":     topic,
		"operation": operation,
		"date":      time.Now().UTC().Format(time.RFC3339),
	}}
}

// runSaleFlow enqueues the scan and forwards RC devices to the inventory
// system. Both side effects are fire-and-report: the sale timestamp is already
// committed and stays committed whatever happens here.
func (s *Service) runSaleFlow(ctx context.Context, bc, scannerID string) {
	res := s.validator.Validate(bc)
	if !res.Valid {
		slog.Warn("sale scan failed barcode classification", "barcode", bc, "error", res.Err)
		return
	}

	if err := s.repo.EnqueueScan(ctx, res.Serial, res.Type, scannerID); err != nil {
		slog.Warn("enqueue sale scan", "serial", res.Serial, "error", err.Error())
	}

	if res.Type == "RC" && s.inventory != nil {
		fwd, err := s.inventory.Send(ctx, res.Serial, map[string]any{"scanner_id": scannerID})
		if err != nil {
			slog.Warn("inventory forward failed", "serial", res.Serial, "error", err.Error())
		} else if !fwd.Success {
			slog.Warn("inventory rejected device", "serial", res.Serial, "message", fwd.Message)
		}
	}
}

func (s *Service) registerPending(topic string, cls payload.Classification, orderType models.OrderType) Response {
	deviceID := bodyID(cls.Body)
	if deviceID == "" {
		return Response{Status: 400, Body: map[string]any{"error": "Missing device id"}}
	}

	s.store.Register(deviceID, orderType, cls.Body)
	return Response{Status: 200, Body: map[string]any{
		"status":          "pending",
		"device_id":       deviceID,
		"order_type":      string(orderType),
		"timeout_seconds": int(s.store.Timeout() / time.Second),
		"topic":           topic,
	}}
}

func (s *Service) resolvePending(ctx context.Context, deviceID string, body map[string]any) Response {
	if deviceID == "" {
		return Response{Status: 400, Body: map[string]any{"error": "Missing device id"}}
	}
	ok, msg := s.store.Resolve(ctx, deviceID, body)
	if !ok {
		return Response{Status: 400, Body: map[string]any{"error": msg, "device_id": deviceID}}
	}
	return Response{Status: 200, Body: map[string]any{"message": msg, "device_id": deviceID}}
}

func orderTypeFor(c payload.Category) models.OrderType {
	if c == payload.CategoryFedExWarehouse {
		return models.OrderTypeFedExWarehouse
	}
	return models.OrderTypeNonFedExWarehouse
}

func bodyID(body map[string]any) string {
	if body == nil {
		return ""
	}
	id, _ := body["id"].(string)
	return id
}

func parseObject(raw string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	obj, _ := v.(map[string]any)
	return obj
}
