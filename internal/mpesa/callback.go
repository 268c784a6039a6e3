package mpesa

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"ridepay/internal/domain"
)

// Metadata item names carried by a successful STK callback.
const (
	ItemReceipt = "MpesaReceiptNumber"
	ItemPhone   = "PhoneNumber"
	ItemAmount  = "Amount"
)

// Acknowledgement is the fixed body the gateway expects in reply to every accepted callback.
type Acknowledgement struct {
	ResponseCode string `json:"ResponseCode"`
	ResponseDesc string `json:"ResponseDesc"`
}

// UnreadableResultCode stands in for a ResultCode that is not a JSON number.
// Only a numeric zero means success, so such a callback is a failed payment.
const UnreadableResultCode = -1

// SuccessAck is returned to the gateway regardless of the booking-level outcome.
var SuccessAck = Acknowledgement{ResponseCode: "00000000", ResponseDesc: "Success"}

// CallbackEnvelope is the JSON document the gateway posts to the callback URL.
type CallbackEnvelope struct {
	Body *struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback holds the gateway's verdict on one push-payment request.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage   `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

// CallbackMetadata is the loosely structured list of named values on a successful callback.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is a single named value. Value is kept raw so large numbers survive intact.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Lookup returns the named item's value as a string, or "" when absent or null.
func (m *CallbackMetadata) Lookup(name string) string {
	if m == nil {
		return ""
	}
	for _, item := range m.Item {
		if item.Name == name {
			return rawString(item.Value)
		}
	}
	return ""
}

// rawString renders a JSON scalar as text: strings are unquoted, numbers keep their literal form.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

// resultCode reads the gateway result code. ok is false only when the code is absent or null.
// Values that are not JSON numbers map to UnreadableResultCode.
func resultCode(raw json.RawMessage) (code int, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if n, err := strconv.Atoi(string(raw)); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == math.Trunc(f) {
		return int(f), true
	}
	return UnreadableResultCode, true
}

// ParseCallback decodes and validates a callback body.
// A missing Body.stkCallback or ResultCode yields ErrInvalidCallback; a ResultCode that is not a
// number is a failed result. A successful result without
// receipt or phone yields ErrIncompleteCallback. A failed result is returned as-is, metadata is
// not required for it.
func ParseCallback(body []byte) (domain.CallbackResult, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.CallbackResult{}, ErrInvalidCallback
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return domain.CallbackResult{}, ErrInvalidCallback
	}

	cb := env.Body.STKCallback
	code, ok := resultCode(cb.ResultCode)
	if !ok {
		return domain.CallbackResult{}, ErrInvalidCallback
	}
	result := domain.CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
	}
	if !result.Succeeded() {
		return result, nil
	}

	result.Receipt = cb.CallbackMetadata.Lookup(ItemReceipt)
	result.Phone = cb.CallbackMetadata.Lookup(ItemPhone)
	result.Amount = cb.CallbackMetadata.Lookup(ItemAmount)

	if result.Receipt == "" || result.Phone == "" {
		return result, ErrIncompleteCallback
	}

	return result, nil
}
