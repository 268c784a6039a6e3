package domain

import "time"

// AttemptStatus represents the state of a single push-payment attempt.
type AttemptStatus string

const (
	AttemptStatusInitiated AttemptStatus = "Initiated"
	AttemptStatusSucceeded AttemptStatus = "Succeeded"
	AttemptStatusFailed    AttemptStatus = "Failed"
)

// PaymentAttempt records one push-payment request and the gateway's verdict on it.
type PaymentAttempt struct {
	CheckoutRequestID string        `json:"checkoutRequestId"`
	MerchantRequestID string        `json:"merchantRequestId"`
	BookingID         string        `json:"bookingId,omitempty"`
	Phone             string        `json:"phone"`
	Amount            int           `json:"amount"`
	Status            AttemptStatus `json:"status"`
	ResultCode        int           `json:"resultCode"`
	ResultDesc        string        `json:"resultDesc,omitempty"`
	Receipt           string        `json:"receipt,omitempty"`
	InitiatedAt       time.Time     `json:"initiatedAt"`
	ResolvedAt        time.Time     `json:"resolvedAt"`
}

// CallbackResult is the gateway's final verdict on a push-payment request.
type CallbackResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Phone             string
	Amount            string
}

// Succeeded reports whether the payer approved the transaction.
func (r CallbackResult) Succeeded() bool {
	return r.ResultCode == 0
}
