package payload

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Category is the outcome of classifying one inbound payload. Exactly one
// category is produced per invocation.
type Category string

const (
	CategoryValidRCFormat     Category = "valid_rc_format"
	CategoryUPSCode           Category = "ups_code"
	CategoryFedExWarehouse    Category = "fedex_warehouse"
	CategoryNonFedExWarehouse Category = "non_fedex_warehouse"
	CategoryTrackingCode      Category = "tracking_code"
	CategoryInvalidRCFormat   Category = "invalid_rc_format"
	CategoryIncorrectFormat   Category = "incorrect_format"
)

// upsSignature appears in UPS tracking numbers of the shipping account used by
// the warehouse, e.g. (421)84037040...; its presence anywhere in the payload is
// the strongest signal we have.
const upsSignature = "37040"

// FedEx warehouse orders are free-text labels that always carry an FBA
// reference plus both fragments of the warehouse address.
const (
	fedexCityFragment = "Coventry, West Midlands"
	fedexParkFragment = "Lyons Park"
)

const warehouseMsgMinLen = 50

type Classification struct {
	Category Category
	Body     map[string]any
	Message  string
	// Barcode carries the RC serial for valid_rc_format results; empty
	// otherwise.
	Barcode string
}

// HasPendingFunc reports whether a pending order is registered for the device
// id; the classifier consults it only on the last, least specific step.
type HasPendingFunc func(deviceID string) bool

// Classify runs the layered decision procedure over a raw payload string.
// Steps are ordered most-specific-signature-first; the first matching step
// wins. Payloads are free-text scanner output with no type tag, so the order
// itself encodes priority among overlapping heuristics.
func Classify(raw string, hasPending HasPendingFunc) Classification {
	if raw == "" {
		return Classification{Category: CategoryIncorrectFormat, Message: "Empty payload"}
	}

	cleaned := stripControlChars(raw)

	// UPS signature anywhere in the raw payload.
	if strings.Contains(cleaned, upsSignature) {
		if body, ok := parseObject(cleaned); ok {
			return Classification{Category: CategoryUPSCode, Body: body, Message: "UPS code detected"}
		}
		return Classification{Category: CategoryUPSCode, Message: "UPS code detected: " + cleaned}
	}

	// Direct-string RC form.
	if len(cleaned) == 39 && strings.HasPrefix(cleaned, "RC-") {
		if !rcPartsValid(cleaned) {
			return Classification{
				Category: CategoryInvalidRCFormat,
				Message:  fmt.Sprintf("Invalid RC-xxx-xxxxxx format: incorrect parts %v", strings.Split(cleaned, "-")),
			}
		}
		if body, ok := parseObject(cleaned); ok {
			return Classification{Category: CategoryValidRCFormat, Body: body, Message: "Valid RC-xxx-xxxxxx format", Barcode: cleaned}
		}
		return Classification{Category: CategoryValidRCFormat, Message: "Valid RC-xxx-xxxxxx format but not JSON: " + cleaned, Barcode: cleaned}
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Classification{Category: CategoryIncorrectFormat, Message: "Incorrect JSON format: " + err.Error()}
	}
	body, ok := parsed.(map[string]any)
	if !ok {
		return Classification{
			Category: CategoryIncorrectFormat,
			Message:  fmt.Sprintf("Invalid JSON format: expected object, got %T", parsed),
		}
	}

	msg, _ := body["msg"].(string)

	if strings.Contains(msg, upsSignature) {
		return Classification{Category: CategoryUPSCode, Body: body, Message: "UPS code detected in msg"}
	}

	if len(msg) == 13 && strings.HasPrefix(msg, "RC-") {
		if rcPartsValid(msg) {
			return Classification{Category: CategoryValidRCFormat, Body: body, Message: "Valid RC-xxx-xxxxxx format in msg", Barcode: msg}
		}
		// Note: the direct-string branch reports invalid_rc_format for the
		// same shape failure; here it is incorrect_format. Downstream reacts
		// differently to the two, keep them distinct.
		return Classification{
			Category: CategoryIncorrectFormat,
			Message:  fmt.Sprintf("Invalid RC-xxx-xxxxxx format in msg: incorrect parts %v", strings.Split(msg, "-")),
		}
	}

	if strings.Contains(msg, "FBA") && strings.Contains(msg, fedexCityFragment) && strings.Contains(msg, fedexParkFragment) {
		return Classification{Category: CategoryFedExWarehouse, Body: body, Message: "FedEx warehouse order"}
	}
	if len(msg) > warehouseMsgMinLen {
		return Classification{Category: CategoryNonFedExWarehouse, Body: body, Message: "Non-FedEx warehouse order"}
	}

	if deviceID, _ := body["id"].(string); deviceID != "" && hasPending != nil && hasPending(deviceID) {
		return Classification{Category: CategoryTrackingCode, Body: body, Message: "Potential tracking code for pending order"}
	}

	return Classification{Category: CategoryIncorrectFormat, Message: "Incorrect format: msg too short or invalid"}
}

// rcPartsValid checks the RC-xxx-xxxxxx decomposition: exactly three
// hyphen-delimited parts with alphanumeric parts of length 3 and 6.
func rcPartsValid(s string) bool {
	parts := strings.Split(s, "-")
	return len(parts) == 3 &&
		len(parts[1]) == 3 && len(parts[2]) == 6 &&
		isAlnum(parts[1]) && isAlnum(parts[2])
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func parseObject(s string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// stripControlChars removes codepoints below 32 except newline, carriage
// return and tab. Scanners occasionally emit GS/RS separators inside JSON.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
