package service

import "errors"

var (
	// ErrInvalidRequest is returned when client-supplied fields are missing or malformed.
	// No gateway call is made when it is returned.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrStoreUnavailable is returned when the booking store cannot be read or written.
	ErrStoreUnavailable = errors.New("booking store unavailable")

	// ErrNoMatch is returned when a callback cannot be reconciled to any booking.
	// It is logged and counted but never fails the gateway acknowledgement.
	ErrNoMatch = errors.New("no booking matches callback")

	// ErrAlreadyCompleted is returned when trying to pay for a booking that is already paid.
	ErrAlreadyCompleted = errors.New("booking already completed")
)
