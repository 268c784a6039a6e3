package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ridepay/internal/domain"
	"ridepay/internal/repository"
)

// AttemptTTL bounds how long a push-payment attempt stays queryable.
const AttemptTTL = 24 * time.Hour

const attemptKeyPrefix = "mpesa:attempt:"

// AttemptStore records push-payment attempts in Redis.
type AttemptStore struct {
	client *redis.Client
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

// Save stores the attempt under its checkout request id.
func (s *AttemptStore) Save(ctx context.Context, attempt *domain.PaymentAttempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, attemptKeyPrefix+attempt.CheckoutRequestID, data, AttemptTTL).Err()
}

// Get retrieves an attempt by checkout request id.
func (s *AttemptStore) Get(ctx context.Context, checkoutRequestID string) (*domain.PaymentAttempt, error) {
	data, err := s.client.Get(ctx, attemptKeyPrefix+checkoutRequestID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var attempt domain.PaymentAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}
