package service

import (
	"fmt"
	"strings"

	"ridepay/internal/domain"
)

// PaymentLabel describes the payment state the way it is shown on a receipt.
func PaymentLabel(b *domain.Booking) string {
	switch {
	case b.IsCompleted():
		return fmt.Sprintf("Paid (M-Pesa: %s)", b.MpesaCode)
	case b.CheckoutRequestID != "":
		return "Processing..."
	default:
		return "Unpaid"
	}
}

// FormatReceipt formats the booking as a plain-text receipt.
func FormatReceipt(b *domain.Booking) string {
	seats := "N/A"
	if len(b.SelectedSeats) > 0 {
		seats = strings.Join(b.SelectedSeats, ", ")
	}

	return `
=====================================
     LUXURY RIDES BOOKING RECEIPT
=====================================
PAYMENT STATUS: ` + PaymentLabel(b) + `
Name:      ` + b.Name + `
Phone:     ` + b.PhoneNumber + `
Residence: ` + b.Residence + `
Route:     ` + b.Route + `
Departure: ` + b.DepartureDate + ` at ` + b.DepartureTime + `
Seats:     ` + seats + `
Amount:    KES ` + fmt.Sprintf("%d", b.Amount()) + `

=====================================
 Thank you for choosing Luxury Rides!
=====================================
`
}
