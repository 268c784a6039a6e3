package postgres

import (
	"context"
	"database/sql"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// schema creates the bookings table when it does not exist yet.
const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	phone_number        TEXT NOT NULL,
	residence           TEXT NOT NULL DEFAULT '',
	route               TEXT NOT NULL DEFAULT '',
	departure_date      TEXT NOT NULL DEFAULT '',
	departure_time      TEXT NOT NULL DEFAULT '',
	selected_seats      TEXT[] NOT NULL DEFAULT '{}',
	seats               INTEGER NOT NULL DEFAULT 0,
	payment_status      TEXT NOT NULL DEFAULT 'Pending',
	mpesa_code          TEXT NOT NULL DEFAULT '',
	checkout_request_id TEXT,
	merchant_request_id TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bookings_phone_number ON bookings (phone_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_checkout_request_id ON bookings (checkout_request_id);
`

// Migrate applies the bookings schema.
func Migrate(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, schema)
	return err
}
