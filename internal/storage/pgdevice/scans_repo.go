package pgdevice

import (
	"context"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) EnqueueScan(ctx context.Context, serial, barcodeType, scannerID string) error {
	if scannerID == "" {
		scannerID = "unknown"
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO scan_queue (serial, barcode_type, scanner_id)
VALUES ($1,$2,$3)
`, serial, barcodeType, scannerID)
	return errors.Wrap(err, "insert scan")
}

// ClaimUnprocessedScans pops a batch of unprocessed scans, marking them
// processed under the claiming session in the same transaction. SKIP LOCKED
// keeps concurrent workers from claiming the same rows.
func (s *Storage) ClaimUnprocessedScans(ctx context.Context, maxAge time.Duration, limit int, sessionID string) ([]*models.ScanRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, serial, barcode_type, scanner_id, scanned_at, created_at
FROM scan_queue
WHERE processed = FALSE
  AND scanned_at >= now() - $1::interval
ORDER BY scanned_at DESC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, maxAge, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select unprocessed scans")
	}
	defer rows.Close()

	var picked []*models.ScanRecord
	for rows.Next() {
		var r models.ScanRecord
		if err := rows.Scan(&r.ID, &r.Serial, &r.BarcodeType, &r.ScannerID, &r.ScannedAt, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		picked = append(picked, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	for _, r := range picked {
		if _, err := tx.Exec(ctx, `
UPDATE scan_queue SET processed = TRUE, session_id = $2 WHERE id = $1
`, r.ID, sessionID); err != nil {
			return nil, errors.Wrap(err, "mark scan processed")
		}
		r.Processed = true
		sid := sessionID
		r.SessionID = &sid
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
