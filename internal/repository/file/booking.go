// Package file stores bookings in a single JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ridepay/internal/domain"
	"ridepay/internal/repository"
)

// document is the on-disk layout: {"bookings": [...]}.
type document struct {
	Bookings []*domain.Booking `json:"bookings"`
}

// BookingStore is a JSON file implementation of repository.BookingStore.
type BookingStore struct {
	path string
}

// NewBookingStore creates a store backed by the file at path.
// The file is created on the first SaveAll; a missing file loads as an empty collection.
func NewBookingStore(path string) *BookingStore {
	return &BookingStore{path: path}
}

// LoadAll reads every booking from the file.
func (s *BookingStore) LoadAll(ctx context.Context) ([]*domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrCorruptStore, err)
	}
	return doc.Bookings, nil
}

// SaveAll writes the bookings to a temporary file and renames it over the store,
// so readers never observe a partially written document.
func (s *BookingStore) SaveAll(ctx context.Context, bookings []*domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}

	data, err := json.MarshalIndent(document{Bookings: bookings}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}
