package pgdevice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// WriteManufacturingDate stamps the current time on an existing device.
// Returns false when the serial is unknown: lifecycle events never create
// device rows, provisioning does.
func (s *Storage) WriteManufacturingDate(ctx context.Context, serial string) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE devices SET manuf_date = now() WHERE serial_number = $1`, serial)
	if err != nil {
		return false, errors.Wrap(err, "update manuf_date")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Storage) WriteSaleDate(ctx context.Context, serial string) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE devices SET sale_date = now() WHERE serial_number = $1`, serial)
	if err != nil {
		return false, errors.Wrap(err, "update sale_date")
	}
	return tag.RowsAffected() > 0, nil
}

// ReadManufacturingDate returns (date, found). A found device may still carry
// a nil date when it was provisioned but never stamped.
func (s *Storage) ReadManufacturingDate(ctx context.Context, serial string) (*time.Time, bool, error) {
	var manufDate *time.Time
	err := s.db.QueryRow(ctx, `SELECT manuf_date FROM devices WHERE serial_number = $1`, serial).Scan(&manufDate)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select manuf_date")
	}
	return manufDate, true, nil
}

func (s *Storage) ReadAllFields(ctx context.Context, serial string) (*models.Device, error) {
	var d models.Device
	err := s.db.QueryRow(ctx, `
SELECT serial_number, manuf_date, sale_date, calibration_data
FROM devices
WHERE serial_number = $1
`, serial).Scan(&d.SerialNumber, &d.ManufDate, &d.SaleDate, &d.CalibrationData)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select device")
	}
	return &d, nil
}

func (s *Storage) GetRecentDevices(ctx context.Context, window time.Duration, limit int) ([]*models.Device, error) {
	rows, err := s.db.Query(ctx, `
SELECT serial_number, manuf_date, sale_date
FROM devices
WHERE manuf_date >= now() - $1::interval
ORDER BY manuf_date DESC
LIMIT $2
`, window, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent devices")
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.SerialNumber, &d.ManufDate, &d.SaleDate); err != nil {
			return nil, errors.Wrap(err, "scan device")
		}
		out = append(out, &d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) SaveOrderNumber(ctx context.Context, deviceID string, orderType models.OrderType, orderNumber string, orderData map[string]any) error {
	return s.insertOrderRef(ctx, deviceID, string(orderType), orderNumber, orderData)
}

func (s *Storage) SaveTrackingNumber(ctx context.Context, deviceID, carrier, trackingNumber string, orderData map[string]any) error {
	return s.insertOrderRef(ctx, deviceID, carrier, trackingNumber, orderData)
}

func (s *Storage) insertOrderRef(ctx context.Context, deviceID, refType, refValue string, orderData map[string]any) error {
	var payload any
	if len(orderData) > 0 {
		b, err := json.Marshal(orderData)
		if err == nil {
			payload = json.RawMessage(b)
		}
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO order_refs (device_id, ref_type, ref_value, order_data)
VALUES ($1,$2,$3,$4)
`, deviceID, refType, refValue, payload)
	return errors.Wrap(err, "insert order ref")
}
