package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
	"ridepay/internal/redis"
	"ridepay/internal/repository"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockWait  = 5 * time.Second
	lockPollInterval = 25 * time.Millisecond
)

// Mutation edits the loaded bookings. It may modify them in place or return an extended slice.
// Returning changed=false skips the write.
type Mutation func(bookings []*domain.Booking) (updated []*domain.Booking, changed bool, err error)

// Ledger serializes read-modify-write cycles over the booking store.
// Writers are serialized in-process by a mutex and, when a lock store is configured,
// across processes by a Redis lock. Snapshot reads only take the read side of the mutex.
type Ledger struct {
	store    repository.BookingStore
	locker   redis.LockStoreInterface
	lockTTL  time.Duration
	lockWait time.Duration
	logger   logrus.FieldLogger

	mu sync.RWMutex
}

// NewLedger creates a new Ledger. locker may be nil for single-process deployments.
func NewLedger(store repository.BookingStore, locker redis.LockStoreInterface, logger logrus.FieldLogger) *Ledger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ledger{
		store:    store,
		locker:   locker,
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		logger:   logger,
	}
}

// Snapshot returns the current bookings.
func (l *Ledger) Snapshot(ctx context.Context) ([]*domain.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bookings, err := l.store.LoadAll(ctx)
	if err != nil {
		l.logger.WithError(err).Error("failed to load bookings")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return bookings, nil
}

// Update runs fn against a fresh load of the store and persists the result if fn reports a change.
// Errors returned by fn are passed through unchanged.
func (l *Ledger) Update(ctx context.Context, fn Mutation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locker != nil {
		token := uuid.New().String()
		if err := l.acquire(ctx, token); err != nil {
			return err
		}
		defer func() {
			// Release on a fresh context so a cancelled request still frees the lock.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := l.locker.ReleaseBookingsLock(releaseCtx, token); err != nil {
				l.logger.WithError(err).Warn("failed to release bookings lock")
			}
		}()
	}

	bookings, err := l.store.LoadAll(ctx)
	if err != nil {
		l.logger.WithError(err).Error("failed to load bookings")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	updated, changed, err := fn(bookings)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := l.store.SaveAll(ctx, updated); err != nil {
		l.logger.WithError(err).Error("failed to save bookings")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// acquire polls for the distributed lock until it is taken or lockWait elapses.
func (l *Ledger) acquire(ctx context.Context, token string) error {
	deadline := time.Now().Add(l.lockWait)
	for {
		ok, err := l.locker.AcquireBookingsLock(ctx, token, l.lockTTL)
		if err != nil {
			return fmt.Errorf("%w: acquire lock: %v", ErrStoreUnavailable, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: bookings lock busy", ErrStoreUnavailable)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
