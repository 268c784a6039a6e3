package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrCorruptStore is returned when stored bookings cannot be decoded.
	ErrCorruptStore = errors.New("booking store is corrupt")
)
