package pgdevice

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS devices (
  serial_number TEXT PRIMARY KEY,
  manuf_date TIMESTAMPTZ NULL,
  sale_date TIMESTAMPTZ NULL,
  calibration_data BYTEA NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_manuf_date ON devices(manuf_date DESC)`,
		`
CREATE TABLE IF NOT EXISTS scan_queue (
  id BIGSERIAL PRIMARY KEY,
  serial TEXT NOT NULL,
  barcode_type TEXT NOT NULL,
  scanner_id TEXT NOT NULL DEFAULT 'unknown',
  scanned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  processed BOOLEAN NOT NULL DEFAULT FALSE,
  session_id TEXT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_queue_unprocessed ON scan_queue(processed, scanned_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS order_refs (
  id BIGSERIAL PRIMARY KEY,
  device_id TEXT NOT NULL,
  ref_type TEXT NOT NULL,
  ref_value TEXT NOT NULL,
  order_data JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_refs_device_id ON order_refs(device_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
