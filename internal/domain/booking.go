package domain

import "time"

// PaymentStatus represents the payment state of a booking.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
)

// ManualPaymentCode is the receipt recorded when an operator marks a booking as paid.
const ManualPaymentCode = "MANUAL_PAYMENT"

// SeatPrice is the fare per seat in KES.
const SeatPrice = 1000

// Booking represents a seat reservation on a scheduled ride.
type Booking struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	PhoneNumber   string        `json:"phoneNumber"`
	Residence     string        `json:"residence"`
	Route         string        `json:"route"`
	DepartureDate string        `json:"departureDate"`
	DepartureTime string        `json:"departureTime"`
	SelectedSeats []string      `json:"selectedSeats"`
	Seats         int           `json:"seats"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	MpesaCode     string        `json:"mpesaCode"`

	// Correlation identifiers issued by the gateway when the push request was accepted.
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	MerchantRequestID string `json:"merchantRequestId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// IsCompleted reports whether the booking has been paid.
func (b *Booking) IsCompleted() bool {
	return b.PaymentStatus == PaymentStatusCompleted
}

// Complete marks the booking as paid with the given receipt.
// It returns false when the booking was already completed or the receipt is empty;
// a completed booking never changes its receipt.
func (b *Booking) Complete(receipt string) bool {
	if b.IsCompleted() || receipt == "" {
		return false
	}
	b.PaymentStatus = PaymentStatusCompleted
	b.MpesaCode = receipt
	return true
}

// Amount returns the fare owed for the booking.
func (b *Booking) Amount() int {
	return b.Seats * SeatPrice
}
