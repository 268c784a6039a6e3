package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
	"ridepay/internal/mpesa"
	"ridepay/internal/repository"
)

// Gateway is the push-payment gateway.
type Gateway interface {
	Token(ctx context.Context) (string, error)
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// CallbackOutcome is what the receiver did with a callback.
type CallbackOutcome string

const (
	OutcomeCompleted     CallbackOutcome = "completed"
	OutcomeDuplicate     CallbackOutcome = "duplicate"
	OutcomeNoMatch       CallbackOutcome = "no_match"
	OutcomePaymentFailed CallbackOutcome = "payment_failed"
)

// CallbackReport describes how a callback was reconciled.
type CallbackReport struct {
	Outcome   CallbackOutcome
	BookingID string
	MatchedBy string // "checkout", "attempt" or "phone"
	Result    domain.CallbackResult
}

// PaymentService handles push-payment initiation and reconciliation.
type PaymentService struct {
	gateway  Gateway
	ledger   *Ledger
	attempts repository.AttemptRepository
	notifier *NotificationService
	recorder Recorder
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService. attempts, notifier and recorder may be nil.
func NewPaymentService(
	gateway Gateway,
	ledger *Ledger,
	attempts repository.AttemptRepository,
	notifier *NotificationService,
	recorder Recorder,
	logger logrus.FieldLogger,
) *PaymentService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if recorder == nil {
		recorder = NewNewRelicRecorder(nil)
	}
	return &PaymentService{
		gateway:  gateway,
		ledger:   ledger,
		attempts: attempts,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Token fetches a gateway bearer credential.
func (s *PaymentService) Token(ctx context.Context) (string, error) {
	token, err := s.gateway.Token(ctx)
	if err != nil {
		s.logGatewayError(err, "token request failed")
		return "", err
	}
	return token, nil
}

// InitiateRequest contains the parameters for starting a push payment.
type InitiateRequest struct {
	Phone     string
	Amount    int
	BookingID string // optional; when set the gateway identifiers are stored on the booking
}

// InitiateResult is the gateway's acknowledgement of a push request.
type InitiateResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
	Response          json.RawMessage

	// Linked reports whether the identifiers were stored on the requested booking.
	Linked bool
}

// Initiate validates the request and asks the gateway to prompt the payer.
// Validation failures return ErrInvalidRequest before any network call.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, mpesa.ErrInvalidAmount)
	}

	if req.BookingID != "" {
		bookings, err := s.ledger.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		booking := findByID(bookings, req.BookingID)
		if booking == nil {
			return nil, repository.ErrNotFound
		}
		if booking.IsCompleted() {
			return nil, ErrAlreadyCompleted
		}
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{Phone: phone, Amount: req.Amount})
	if err != nil {
		s.recorder.RecordInitiation(false)
		s.logGatewayError(err, "stk push failed")
		return nil, err
	}
	s.recorder.RecordInitiation(true)

	log := s.logger.WithFields(logrus.Fields{
		"checkout_request_id": resp.CheckoutRequestID,
		"merchant_request_id": resp.MerchantRequestID,
		"booking_id":          req.BookingID,
		"amount":              req.Amount,
	})
	log.Info("stk push accepted")

	s.saveAttempt(ctx, &domain.PaymentAttempt{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		BookingID:         req.BookingID,
		Phone:             phone,
		Amount:            req.Amount,
		Status:            domain.AttemptStatusInitiated,
		InitiatedAt:       s.now(),
	})

	linked := false
	if req.BookingID != "" {
		// The push already went out, so a failure here only loses the correlation key;
		// the callback can still be reconciled through the attempt record.
		if err := s.ledger.Update(ctx, func(bookings []*domain.Booking) ([]*domain.Booking, bool, error) {
			b := findByID(bookings, req.BookingID)
			if b == nil || b.IsCompleted() {
				return bookings, false, nil
			}
			b.CheckoutRequestID = resp.CheckoutRequestID
			b.MerchantRequestID = resp.MerchantRequestID
			linked = true
			return bookings, true, nil
		}); err != nil {
			linked = false
			log.WithError(err).Error("failed to store correlation ids on booking")
		}
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyPaymentRequested(ctx, phone, req.Amount, resp.CheckoutRequestID)
	}

	return &InitiateResult{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
		Response:          resp.Raw,
		Linked:            linked,
	}, nil
}

// HandleCallback validates a gateway callback and reconciles it against the bookings.
// Malformed envelopes return mpesa.ErrInvalidCallback, successful results without receipt or
// phone return mpesa.ErrIncompleteCallback; neither mutates anything. A failed result or an
// unmatched callback is reported through the returned CallbackReport, not as an error.
func (s *PaymentService) HandleCallback(ctx context.Context, body []byte) (*CallbackReport, error) {
	result, err := mpesa.ParseCallback(body)
	if err != nil {
		s.logger.WithError(err).WithField("body", string(body)).Warn("rejected callback")
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"checkout_request_id": result.CheckoutRequestID,
		"result_code":         result.ResultCode,
	})

	if !result.Succeeded() {
		report := &CallbackReport{Outcome: OutcomePaymentFailed, Result: result}
		log.WithField("result_desc", result.ResultDesc).Warn("payment failed")
		s.resolveAttempt(ctx, result, domain.AttemptStatusFailed)
		if s.notifier != nil {
			_ = s.notifier.NotifyPaymentFailed(ctx, result)
		}
		s.recorder.RecordCallback(report)
		return report, nil
	}

	report := &CallbackReport{Result: result}
	var completed domain.Booking
	attemptBookingID := s.attemptBookingID(ctx, result.CheckoutRequestID)

	err = s.ledger.Update(ctx, func(bookings []*domain.Booking) ([]*domain.Booking, bool, error) {
		booking := MatchCheckout(bookings, result.CheckoutRequestID)
		report.MatchedBy = "checkout"
		if booking == nil && attemptBookingID != "" {
			booking = findByID(bookings, attemptBookingID)
			report.MatchedBy = "attempt"
		}
		if booking == nil {
			booking = MatchUnbound(bookings, result.Phone)
			report.MatchedBy = "phone"
		}
		if booking == nil {
			report.MatchedBy = ""
			report.Outcome = OutcomeNoMatch
			return bookings, false, nil
		}

		report.BookingID = booking.ID
		if !booking.Complete(result.Receipt) {
			report.Outcome = OutcomeDuplicate
			return bookings, false, nil
		}

		report.Outcome = OutcomeCompleted
		completed = *booking
		return bookings, true, nil
	})
	if err != nil {
		log.WithError(err).Error("failed to reconcile callback")
		return nil, err
	}

	log = log.WithFields(logrus.Fields{
		"receipt":    result.Receipt,
		"phone":      result.Phone,
		"booking_id": report.BookingID,
		"matched_by": report.MatchedBy,
	})

	switch report.Outcome {
	case OutcomeCompleted:
		log.Info("booking payment completed")
		if s.notifier != nil {
			_ = s.notifier.NotifyPaymentCompleted(ctx, &completed)
		}
	case OutcomeDuplicate:
		log.Info("booking already completed, callback ignored")
	case OutcomeNoMatch:
		log.WithError(ErrNoMatch).Warn("callback dropped")
	}

	s.resolveAttempt(ctx, result, domain.AttemptStatusSucceeded)
	s.recorder.RecordCallback(report)
	return report, nil
}

// Status returns the bookings for phone, latest departure first.
func (s *PaymentService) Status(ctx context.Context, phone string) ([]*domain.Booking, error) {
	bookings, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return MatchAll(bookings, phone), nil
}

// Attempt returns the recorded push-payment attempt for a checkout request id.
func (s *PaymentService) Attempt(ctx context.Context, checkoutRequestID string) (*domain.PaymentAttempt, error) {
	if checkoutRequestID == "" {
		return nil, ErrInvalidRequest
	}
	if s.attempts == nil {
		return nil, repository.ErrNotFound
	}
	return s.attempts.Get(ctx, checkoutRequestID)
}

// attemptBookingID returns the booking a recorded push was made for. It resolves callbacks
// for pushes that a later initiation of the same booking superseded.
func (s *PaymentService) attemptBookingID(ctx context.Context, checkoutRequestID string) string {
	if s.attempts == nil || checkoutRequestID == "" {
		return ""
	}
	attempt, err := s.attempts.Get(ctx, checkoutRequestID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithError(err).Warn("failed to read payment attempt")
		}
		return ""
	}
	return attempt.BookingID
}

func (s *PaymentService) saveAttempt(ctx context.Context, attempt *domain.PaymentAttempt) {
	if s.attempts == nil {
		return
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		s.logger.WithError(err).WithField("checkout_request_id", attempt.CheckoutRequestID).Warn("failed to record payment attempt")
	}
}

// resolveAttempt records the gateway verdict on the attempt, creating the record if the
// initiation happened before attempts were tracked.
func (s *PaymentService) resolveAttempt(ctx context.Context, result domain.CallbackResult, status domain.AttemptStatus) {
	if s.attempts == nil || result.CheckoutRequestID == "" {
		return
	}

	attempt, err := s.attempts.Get(ctx, result.CheckoutRequestID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithError(err).Warn("failed to read payment attempt")
		}
		attempt = &domain.PaymentAttempt{
			CheckoutRequestID: result.CheckoutRequestID,
			MerchantRequestID: result.MerchantRequestID,
			Phone:             result.Phone,
		}
	}

	attempt.Status = status
	attempt.ResultCode = result.ResultCode
	attempt.ResultDesc = result.ResultDesc
	attempt.Receipt = result.Receipt
	attempt.ResolvedAt = s.now()
	s.saveAttempt(ctx, attempt)
}

func (s *PaymentService) logGatewayError(err error, msg string) {
	log := s.logger.WithError(err)
	var gwErr *mpesa.GatewayError
	if errors.As(err, &gwErr) {
		log = log.WithFields(logrus.Fields{
			"op":      gwErr.Op,
			"status":  gwErr.StatusCode,
			"details": gwErr.Details(),
		})
	}
	log.Error(msg)
}

func findByID(bookings []*domain.Booking, id string) *domain.Booking {
	for _, b := range bookings {
		if b.ID == id {
			return b
		}
	}
	return nil
}
