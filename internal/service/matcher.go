package service

import (
	"sort"
	"time"

	"github.com/jinzhu/now"

	"ridepay/internal/domain"
)

// MatchAll returns the bookings whose phone number equals phone exactly, latest departure first.
// Ties on departure date go to the most recently created booking, then to the larger id.
// Bookings with an unparseable departure date sort last.
func MatchAll(bookings []*domain.Booking, phone string) []*domain.Booking {
	matches := make([]*domain.Booking, 0)
	for _, b := range bookings {
		if b.PhoneNumber == phone {
			matches = append(matches, b)
		}
	}

	departures := make(map[*domain.Booking]time.Time, len(matches))
	for _, b := range matches {
		if t, ok := parseDeparture(b.DepartureDate); ok {
			departures[b] = t
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		ta, okA := departures[a]
		tb, okB := departures[b]

		switch {
		case okA != okB:
			return okA
		case okA && !ta.Equal(tb):
			return ta.After(tb)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		default:
			return a.ID > b.ID
		}
	})

	return matches
}

// Match returns the booking a payment from phone most likely refers to, or nil.
func Match(bookings []*domain.Booking, phone string) *domain.Booking {
	matches := MatchAll(bookings, phone)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// MatchUnbound is Match restricted to bookings that carry no checkout request id.
// A booking bound to a push can only be settled through that push's identifiers.
func MatchUnbound(bookings []*domain.Booking, phone string) *domain.Booking {
	for _, b := range MatchAll(bookings, phone) {
		if b.CheckoutRequestID == "" {
			return b
		}
	}
	return nil
}

// MatchCheckout returns the booking carrying the gateway checkout request id, or nil.
func MatchCheckout(bookings []*domain.Booking, checkoutRequestID string) *domain.Booking {
	if checkoutRequestID == "" {
		return nil
	}
	for _, b := range bookings {
		if b.CheckoutRequestID == checkoutRequestID {
			return b
		}
	}
	return nil
}

func parseDeparture(date string) (time.Time, bool) {
	if date == "" {
		return time.Time{}, false
	}
	t, err := now.ParseInLocation(time.UTC, date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
