package messages

import "time"

// ScanMessage is the broker-side shape of a scanner event; identical to the
// webhook body, so both transports feed the same dispatcher.
type ScanMessage struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// DeviceLifecycleEvent is published downstream after a successful lifecycle
// timestamp write.
type DeviceLifecycleEvent struct {
	Serial      string    `json:"serial"`
	Operation   string    `json:"operation"`
	Topic       string    `json:"topic"`
	BarcodeType string    `json:"barcode_type,omitempty"`
	ScannerID   string    `json:"scanner_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
