package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/models"
)

const DefaultTimeout = 10 * time.Second

// Saver persists resolved order/tracking numbers. Failures are logged and do
// not fail the resolution: local correlation outcome and the persistence side
// effect are deliberately independent.
type Saver interface {
	SaveOrderNumber(ctx context.Context, deviceID string, orderType models.OrderType, orderNumber string, orderData map[string]any) error
	SaveTrackingNumber(ctx context.Context, deviceID, carrier, trackingNumber string, orderData map[string]any) error
}

type pendingOrder struct {
	orderType    models.OrderType
	registeredAt time.Time
	orderData    map[string]any
}

// Store is the registry of pending orders awaiting a correlated follow-up
// message. It owns all entries exclusively; every access goes through the
// mutex so a register-or-resolve decision for a device id is atomic.
type Store struct {
	mu      sync.Mutex
	pending map[string]pendingOrder
	timeout time.Duration
	saver   Saver
	now     func() time.Time
}

func New(timeout time.Duration, saver Saver) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{
		pending: make(map[string]pendingOrder),
		timeout: timeout,
		saver:   saver,
		now:     time.Now,
	}
}

func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// Register inserts a pending order for the device, silently overwriting any
// prior entry for the same key (last registration wins).
func (s *Store) Register(deviceID string, orderType models.OrderType, orderData map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[deviceID] = pendingOrder{
		orderType:    orderType,
		registeredAt: s.now(),
		orderData:    orderData,
	}
	slog.Info("pending order registered", "device_id", deviceID, "order_type", string(orderType))
}

// HasPending reports whether a live pending order exists for the device.
// An entry past its timeout reads as absent even if not yet swept.
func (s *Store) HasPending(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[deviceID]
	if !ok {
		return false
	}
	return s.now().Sub(entry.registeredAt) <= s.timeout
}

// Resolve consumes the pending order for the device. Pop-once: the entry is
// removed whether or not resolution succeeds, so a replayed follow-up cannot
// resolve twice. On success the extracted order/tracking number is handed to
// the saver.
func (s *Store) Resolve(ctx context.Context, deviceID string, followUp map[string]any) (bool, string) {
	s.mu.Lock()
	entry, ok := s.pending[deviceID]
	if ok {
		delete(s.pending, deviceID)
	}
	now := s.now()
	s.mu.Unlock()

	if !ok {
		slog.Warn("tracking code for unknown device", "device_id", deviceID)
		return false, "No pending order for this device"
	}
	if now.Sub(entry.registeredAt) > s.timeout {
		slog.Warn("tracking code arrived past timeout", "device_id", deviceID)
		return false, "Tracking code timeout"
	}

	msg, _ := followUp["msg"].(string)

	switch entry.orderType {
	case models.OrderTypeFedExWarehouse, models.OrderTypeNonFedExWarehouse:
		orderNumber := msg
		if len(msg) >= 12 {
			orderNumber = msg[len(msg)-12:]
		}
		if s.saver != nil {
			if err := s.saver.SaveOrderNumber(ctx, deviceID, entry.orderType, orderNumber, entry.orderData); err != nil {
				slog.Warn("save order number", "device_id", deviceID, "error", err.Error())
			}
		}
		return true, fmt.Sprintf("Order number %s saved for %s", orderNumber, entry.orderType)

	case models.OrderTypeUPSCode:
		trackingNumber := msg
		if s.saver != nil {
			if err := s.saver.SaveTrackingNumber(ctx, deviceID, "ups", trackingNumber, entry.orderData); err != nil {
				slog.Warn("save tracking number", "device_id", deviceID, "error", err.Error())
			}
		}
		return true, fmt.Sprintf("UPS tracking number %s saved", trackingNumber)
	}

	return false, "Unknown order type"
}

// SweepExpired drops all entries past the timeout. Called opportunistically
// before each classification pass; there is no background timer.
func (s *Store) SweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for deviceID, entry := range s.pending {
		if now.Sub(entry.registeredAt) > s.timeout {
			slog.Warn("expired pending order removed", "device_id", deviceID)
			delete(s.pending, deviceID)
		}
	}
}
