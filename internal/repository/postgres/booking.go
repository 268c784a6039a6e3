package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"ridepay/internal/domain"
)

// BookingStore is a PostgreSQL implementation of repository.BookingStore.
type BookingStore struct {
	db *sql.DB
}

// NewBookingStore creates a new PostgreSQL booking store.
func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db}
}

const bookingColumns = `id, name, phone_number, residence, route, departure_date, departure_time,
	selected_seats, seats, payment_status, mpesa_code, checkout_request_id, merchant_request_id, created_at`

// LoadAll retrieves all bookings in creation order.
func (s *BookingStore) LoadAll(ctx context.Context) ([]*domain.Booking, error) {
	return loadAll(ctx, s.db)
}

func loadAll(ctx context.Context, q Querier) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		var b domain.Booking
		var seats pq.StringArray
		var checkoutID, merchantID sql.NullString

		if err := rows.Scan(
			&b.ID,
			&b.Name,
			&b.PhoneNumber,
			&b.Residence,
			&b.Route,
			&b.DepartureDate,
			&b.DepartureTime,
			&seats,
			&b.Seats,
			&b.PaymentStatus,
			&b.MpesaCode,
			&checkoutID,
			&merchantID,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}

		b.SelectedSeats = []string(seats)
		if checkoutID.Valid {
			b.CheckoutRequestID = checkoutID.String
		}
		if merchantID.Valid {
			b.MerchantRequestID = merchantID.String
		}
		bookings = append(bookings, &b)
	}

	return bookings, rows.Err()
}

// SaveAll replaces the stored bookings inside a single transaction.
// Rows whose id is absent from bookings are removed.
func (s *BookingStore) SaveAll(ctx context.Context, bookings []*domain.Booking) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone_number = EXCLUDED.phone_number,
			residence = EXCLUDED.residence,
			route = EXCLUDED.route,
			departure_date = EXCLUDED.departure_date,
			departure_time = EXCLUDED.departure_time,
			selected_seats = EXCLUDED.selected_seats,
			seats = EXCLUDED.seats,
			payment_status = EXCLUDED.payment_status,
			mpesa_code = EXCLUDED.mpesa_code,
			checkout_request_id = EXCLUDED.checkout_request_id,
			merchant_request_id = EXCLUDED.merchant_request_id
	`

	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		if _, err = tx.ExecContext(ctx, upsert,
			b.ID,
			b.Name,
			b.PhoneNumber,
			b.Residence,
			b.Route,
			b.DepartureDate,
			b.DepartureTime,
			pq.Array(b.SelectedSeats),
			b.Seats,
			b.PaymentStatus,
			b.MpesaCode,
			nullString(b.CheckoutRequestID),
			nullString(b.MerchantRequestID),
			b.CreatedAt,
		); err != nil {
			return fmt.Errorf("upsert booking %s: %w", b.ID, err)
		}
		ids = append(ids, b.ID)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM bookings WHERE NOT (id = ANY($1))`, pq.Array(ids)); err != nil {
		return fmt.Errorf("prune bookings: %w", err)
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
