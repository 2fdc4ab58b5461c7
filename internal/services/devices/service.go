package devices

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/cache"
	"github.com/RadiaWorks/ScanGate/internal/models"
)

const (
	defaultFreshnessWindow = time.Hour
	defaultRecentLimit     = 50
)

type Repository interface {
	ReadManufacturingDate(ctx context.Context, serial string) (*time.Time, bool, error)
	ReadAllFields(ctx context.Context, serial string) (*models.Device, error)
	GetRecentDevices(ctx context.Context, window time.Duration, limit int) ([]*models.Device, error)
}

// DeviceStatus is the read-model for a single device: the manufacturing
// timestamp plus a freshness verdict computed at read time.
type DeviceStatus struct {
	Serial     string     `json:"serial"`
	Status     string     `json:"status"`
	ManufDate  *time.Time `json:"manuf_date,omitempty"`
	AgeSeconds int64      `json:"age_seconds"`
	AgeMinutes int64      `json:"age_minutes"`
}

// DeviceRecord is the full-field view; calibration data travels base64-encoded.
type DeviceRecord struct {
	Serial          string     `json:"serial"`
	ManufDate       *time.Time `json:"manuf_date,omitempty"`
	SaleDate        *time.Time `json:"sale_date,omitempty"`
	CalibrationData string     `json:"calibration_data,omitempty"`
}

type Service struct {
	repo      Repository
	cache     cache.BytesCache
	cacheTTL  time.Duration
	freshness time.Duration
	now       func() time.Time
}

func New(repo Repository, c cache.BytesCache, cacheTTL, freshness time.Duration) *Service {
	if freshness <= 0 {
		freshness = defaultFreshnessWindow
	}
	return &Service{
		repo:      repo,
		cache:     c,
		cacheTTL:  cacheTTL,
		freshness: freshness,
		now:       time.Now,
	}
}

// cached payload: manuf date only, freshness is recomputed on every read so a
// cache hit near the window boundary cannot report stale status.
type cachedDevice struct {
	Serial    string     `json:"serial"`
	ManufDate *time.Time `json:"manuf_date"`
}

func currentKey(serial string) string {
	return "device:current:" + serial
}

// GetDevice returns the freshness status for a serial, nil when unknown.
func (s *Service) GetDevice(ctx context.Context, serial string) (*DeviceStatus, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(serial)); err == nil && ok {
			var cd cachedDevice
			if json.Unmarshal(b, &cd) == nil {
				return s.statusFor(cd.Serial, cd.ManufDate), nil
			}
		}
	}

	date, found, err := s.repo.ReadManufacturingDate(ctx, serial)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if b, err := json.Marshal(cachedDevice{Serial: serial, ManufDate: date}); err == nil {
			_ = s.cache.Set(ctx, currentKey(serial), b, s.cacheTTL)
		}
	}
	return s.statusFor(serial, date), nil
}

// GetAllFields returns the full device record, nil when unknown.
func (s *Service) GetAllFields(ctx context.Context, serial string) (*DeviceRecord, error) {
	d, err := s.repo.ReadAllFields(ctx, serial)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	rec := &DeviceRecord{
		Serial:    d.SerialNumber,
		ManufDate: d.ManufDate,
		SaleDate:  d.SaleDate,
	}
	if len(d.CalibrationData) > 0 {
		rec.CalibrationData = base64.StdEncoding.EncodeToString(d.CalibrationData)
	}
	return rec, nil
}

// GetRecentDevices lists devices manufactured inside the window, newest first.
func (s *Service) GetRecentDevices(ctx context.Context, window time.Duration, limit int) ([]*DeviceStatus, error) {
	if window <= 0 {
		window = s.freshness
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	list, err := s.repo.GetRecentDevices(ctx, window, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*DeviceStatus, 0, len(list))
	for _, d := range list {
		out = append(out, s.statusFor(d.SerialNumber, d.ManufDate))
	}
	return out, nil
}

// CheckStatus reports whether the barcode has been scanned on the production
// line, i.e. carries a manufacturing timestamp.
func (s *Service) CheckStatus(ctx context.Context, barcode string) (bool, error) {
	date, found, err := s.repo.ReadManufacturingDate(ctx, barcode)
	if err != nil {
		return false, err
	}
	return found && date != nil, nil
}

// Invalidate drops the cached read-model after a lifecycle write.
func (s *Service) Invalidate(ctx context.Context, serial string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, currentKey(serial))
	}
}

func (s *Service) statusFor(serial string, manufDate *time.Time) *DeviceStatus {
	st := &DeviceStatus{
		Serial:    serial,
		Status:    models.DeviceStatusExpired,
		ManufDate: manufDate,
	}
	if manufDate == nil {
		return st
	}
	age := s.now().Sub(*manufDate)
	st.AgeSeconds = int64(age / time.Second)
	st.AgeMinutes = int64(age / time.Minute)
	if age <= s.freshness {
		st.Status = models.DeviceStatusReady
	}
	return st
}
