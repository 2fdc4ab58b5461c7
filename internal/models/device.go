package models

import "time"

// Freshness statuses derived from manufacturing age.
const (
	DeviceStatusReady   = "ready"
	DeviceStatusExpired = "expired"
)

type Device struct {
	SerialNumber    string
	ManufDate       *time.Time
	SaleDate        *time.Time
	CalibrationData []byte
}

type ScanRecord struct {
	ID          uint64
	Serial      string
	BarcodeType string
	ScannerID   string
	ScannedAt   time.Time
	CreatedAt   time.Time
	Processed   bool
	SessionID   *string
}

// OrderType is a closed set: the correlation resolve path switches over it
// exhaustively, so new types must be added here and handled there.
type OrderType string

const (
	OrderTypeFedExWarehouse    OrderType = "fedex_warehouse"
	OrderTypeNonFedExWarehouse OrderType = "non_fedex_warehouse"
	OrderTypeUPSCode           OrderType = "ups_code"
)
