package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
	"ridepay/internal/mpesa"
	"ridepay/internal/redis"
	"ridepay/internal/repository"
	"ridepay/internal/service"
)

// Ensure mocks implement the interfaces they stand in for.
var (
	_ repository.BookingStore      = (*MockBookingStore)(nil)
	_ repository.AttemptRepository = (*MockAttemptStore)(nil)
	_ redis.LockStoreInterface     = (*MockLockStore)(nil)
	_ service.Gateway              = (*MockGateway)(nil)
	_ service.Recorder             = (*MockRecorder)(nil)
)

// ──────────────────────────────────────────────
// MOCK BOOKING STORE
// ──────────────────────────────────────────────

// MockBookingStore is a whole-collection store that hands out copies, like a file or table would.
type MockBookingStore struct {
	mu       sync.Mutex
	bookings []*domain.Booking

	// Counters for verification
	LoadCallCount int32
	SaveCallCount int32

	// Error injection
	LoadError error
	SaveError error

	// FailSavesAfter makes every SaveAll after the first n calls fail with ErrMockStoreDown.
	FailSavesAfter int32

	// SaveDelay widens the read-modify-write window to expose lost updates.
	SaveDelay time.Duration
}

// NewMockBookingStore creates a new mock booking store holding copies of bookings.
func NewMockBookingStore(bookings ...*domain.Booking) *MockBookingStore {
	return &MockBookingStore{bookings: copyBookings(bookings)}
}

func (m *MockBookingStore) LoadAll(ctx context.Context) ([]*domain.Booking, error) {
	atomic.AddInt32(&m.LoadCallCount, 1)
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyBookings(m.bookings), nil
}

func (m *MockBookingStore) SaveAll(ctx context.Context, bookings []*domain.Booking) error {
	n := atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	if m.FailSavesAfter > 0 && n > m.FailSavesAfter {
		return ErrMockStoreDown
	}
	if m.SaveDelay > 0 {
		time.Sleep(m.SaveDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = copyBookings(bookings)
	return nil
}

// GetBooking returns a copy of the stored booking for test assertions, or nil.
func (m *MockBookingStore) GetBooking(id string) *domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return copyBooking(b)
		}
	}
	return nil
}

// All returns copies of every stored booking.
func (m *MockBookingStore) All() []*domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyBookings(m.bookings)
}

// Saves returns how many times SaveAll was called.
func (m *MockBookingStore) Saves() int {
	return int(atomic.LoadInt32(&m.SaveCallCount))
}

func copyBookings(in []*domain.Booking) []*domain.Booking {
	out := make([]*domain.Booking, 0, len(in))
	for _, b := range in {
		out = append(out, copyBooking(b))
	}
	return out
}

func copyBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.SelectedSeats = append([]string(nil), b.SelectedSeats...)
	return &c
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu     sync.Mutex
	holder string
	expiry time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{}
}

func (m *MockLockStore) AcquireBookingsLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder != "" && time.Now().Before(m.expiry) {
		return false, nil // Lock still held.
	}
	m.holder = token
	m.expiry = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleaseBookingsLock(ctx context.Context, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	// Only the owner may release.
	if m.holder == token {
		m.holder = ""
	}
	return nil
}

// IsLocked checks if the bookings lock is held (for test assertions).
func (m *MockLockStore) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder != "" && time.Now().Before(m.expiry)
}

// ──────────────────────────────────────────────
// MOCK ATTEMPT STORE
// ──────────────────────────────────────────────

// MockAttemptStore is a mock implementation of AttemptRepository.
type MockAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.PaymentAttempt

	SaveError error
}

// NewMockAttemptStore creates a new mock attempt store.
func NewMockAttemptStore() *MockAttemptStore {
	return &MockAttemptStore{attempts: make(map[string]domain.PaymentAttempt)}
}

func (m *MockAttemptStore) Save(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.CheckoutRequestID] = *attempt
	return nil
}

func (m *MockAttemptStore) Get(ctx context.Context, checkoutRequestID string) (*domain.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[checkoutRequestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// Count returns the number of recorded attempts.
func (m *MockAttemptStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a mock push-payment gateway. Checkout ids are issued as ws_CO_1, ws_CO_2, ...
type MockGateway struct {
	mu       sync.Mutex
	requests []mpesa.STKPushRequest

	// Control behavior
	FailError error

	// Counters
	TokenCallCount int32
	PushCallCount  int32
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Token(ctx context.Context) (string, error) {
	atomic.AddInt32(&m.TokenCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailError != nil {
		return "", m.FailError
	}
	return "mock-token", nil
}

func (m *MockGateway) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	n := atomic.AddInt32(&m.PushCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailError != nil {
		return nil, m.FailError
	}
	m.requests = append(m.requests, req)

	resp := &mpesa.STKPushResponse{
		MerchantRequestID:   fmt.Sprintf("29115-%d", n),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_%d", n),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}
	resp.Raw, _ = json.Marshal(resp)
	return resp, nil
}

// SetFailure configures the gateway to fail with err, or succeed when err is nil.
func (m *MockGateway) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailError = err
}

// Requests returns the push requests the gateway accepted.
func (m *MockGateway) Requests() []mpesa.STKPushRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mpesa.STKPushRequest(nil), m.requests...)
}

// Calls returns the total number of gateway calls.
func (m *MockGateway) Calls() int {
	return int(atomic.LoadInt32(&m.TokenCallCount) + atomic.LoadInt32(&m.PushCallCount))
}

// ──────────────────────────────────────────────
// MOCK RECORDER
// ──────────────────────────────────────────────

// MockRecorder captures payment signals.
type MockRecorder struct {
	mu          sync.Mutex
	initiations []bool
	callbacks   []service.CallbackOutcome
}

func (m *MockRecorder) RecordInitiation(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initiations = append(m.initiations, success)
}

func (m *MockRecorder) RecordCallback(report *service.CallbackReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, report.Outcome)
}

// Outcomes returns the recorded callback outcomes in order.
func (m *MockRecorder) Outcomes() []service.CallbackOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]service.CallbackOutcome(nil), m.callbacks...)
}

// Initiations returns the recorded initiation results in order.
func (m *MockRecorder) Initiations() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.initiations...)
}

// ──────────────────────────────────────────────
// FIXTURES
// ──────────────────────────────────────────────

var (
	ErrMockStoreDown = errors.New("mock: store unavailable")
	ErrMockTimeout   = errors.New("mock: operation timeout")
)

var baseTime = time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC)

// pendingBooking returns a Pending booking for phone departing on date.
func pendingBooking(id, phone, date string) *domain.Booking {
	return &domain.Booking{
		ID:            id,
		Name:          "Amina Wanjiru",
		PhoneNumber:   phone,
		Route:         "Nairobi - Mombasa",
		DepartureDate: date,
		DepartureTime: "08:00",
		SelectedSeats: []string{"A1", "A2"},
		Seats:         2,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     baseTime,
	}
}

// fixture bundles a payment service with its mocks.
type fixture struct {
	store    *MockBookingStore
	locks    *MockLockStore
	attempts *MockAttemptStore
	gateway  *MockGateway
	recorder *MockRecorder
	ledger   *service.Ledger
	payments *service.PaymentService
	bookings *service.BookingService
}

func newFixture(bookings ...*domain.Booking) *fixture {
	logger := quietLogger()
	f := &fixture{
		store:    NewMockBookingStore(bookings...),
		locks:    NewMockLockStore(),
		attempts: NewMockAttemptStore(),
		gateway:  NewMockGateway(),
		recorder: &MockRecorder{},
	}
	f.ledger = service.NewLedger(f.store, f.locks, logger)
	f.payments = service.NewPaymentService(f.gateway, f.ledger, f.attempts,
		service.NewNotificationService(logger), f.recorder, logger)
	f.bookings = service.NewBookingService(f.ledger, f.payments, logger)
	return f
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// successCallback builds a result-code-0 callback body. The phone is a bare JSON number,
// as the gateway sends it.
func successCallback(checkoutID, receipt, phone string) []byte {
	return []byte(fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 2000.00},
          {"Name": "MpesaReceiptNumber", "Value": %q},
          {"Name": "TransactionDate", "Value": 20240501120512},
          {"Name": "PhoneNumber", "Value": %s}
        ]
      }
    }
  }
}`, checkoutID, receipt, phone))
}

// failedCallback builds a callback for a payment the payer cancelled.
func failedCallback(checkoutID string) []byte {
	return []byte(fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`, checkoutID))
}
