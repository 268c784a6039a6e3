package repository

import (
	"context"

	"ridepay/internal/domain"
)

// BookingStore is the persistence collaborator for bookings.
// It has whole-collection semantics: LoadAll returns every booking in creation order and
// SaveAll replaces the stored collection with the given one. Callers are responsible for
// serializing the read-modify-write cycle.
type BookingStore interface {
	// LoadAll retrieves all bookings.
	LoadAll(ctx context.Context) ([]*domain.Booking, error)

	// SaveAll replaces the stored bookings.
	SaveAll(ctx context.Context, bookings []*domain.Booking) error
}
