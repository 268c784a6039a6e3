package app

import (
	"database/sql"
	"fmt"

	"ridepay/internal/config"
	"ridepay/internal/repository"
	"ridepay/internal/repository/file"
	"ridepay/internal/repository/postgres"
)

// NewBookingStore returns the configured booking store. db is only used by the postgres backend.
func NewBookingStore(cfg config.StoreConfig, db *sql.DB) (repository.BookingStore, error) {
	switch cfg.Backend {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres booking store requires a database connection")
		}
		return postgres.NewBookingStore(db), nil
	case "file":
		return file.NewBookingStore(cfg.FilePath), nil
	default:
		return nil, fmt.Errorf("unknown booking store %q", cfg.Backend)
	}
}
