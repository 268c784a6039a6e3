package repository

import (
	"context"

	"ridepay/internal/domain"
)

// AttemptRepository records push-payment attempts and their gateway verdicts.
type AttemptRepository interface {
	// Save stores or replaces an attempt keyed by its checkout request id.
	Save(ctx context.Context, attempt *domain.PaymentAttempt) error

	// Get retrieves an attempt by checkout request id.
	// Returns ErrNotFound if the attempt is unknown or has expired.
	Get(ctx context.Context, checkoutRequestID string) (*domain.PaymentAttempt, error)
}
