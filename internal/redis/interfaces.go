package redis

import (
	"context"
	"time"

	"ridepay/internal/mpesa"
	"ridepay/internal/repository"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireBookingsLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	ReleaseBookingsLock(ctx context.Context, token string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface           = (*LockStore)(nil)
	_ repository.AttemptRepository = (*AttemptStore)(nil)
	_ mpesa.TokenCache             = (*TokenCache)(nil)
)
