package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
	"ridepay/internal/mpesa"
	"ridepay/internal/repository"
)

// BookingService handles booking submission and the manual payment override.
type BookingService struct {
	ledger   *Ledger
	payments *PaymentService
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewBookingService creates a new BookingService. payments may be nil to disable initiation.
func NewBookingService(ledger *Ledger, payments *PaymentService, logger logrus.FieldLogger) *BookingService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BookingService{
		ledger:   ledger,
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateBookingRequest contains the parameters for creating a booking.
type CreateBookingRequest struct {
	Name          string
	PhoneNumber   string
	Residence     string
	Route         string
	DepartureDate string
	DepartureTime string
	SelectedSeats []string

	// MpesaPhone, when set, triggers a push payment for the booking's fare.
	MpesaPhone string
}

// SubmitResult is the outcome of a booking submission.
// PaymentErr is set when initiation failed; the booking is saved regardless.
type SubmitResult struct {
	Booking    *domain.Booking
	Payment    *InitiateResult
	PaymentErr error
}

// Submit saves a new Pending booking and then, if requested, starts its payment.
func (s *BookingService) Submit(ctx context.Context, req CreateBookingRequest) (*SubmitResult, error) {
	booking, err := s.newBooking(req)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Update(ctx, func(bookings []*domain.Booking) ([]*domain.Booking, bool, error) {
		return append(bookings, booking), true, nil
	}); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"seats":      booking.Seats,
	})
	log.Info("booking created")

	result := &SubmitResult{Booking: booking}
	if req.MpesaPhone == "" || s.payments == nil {
		return result, nil
	}

	payment, err := s.payments.Initiate(ctx, InitiateRequest{
		Phone:     req.MpesaPhone,
		Amount:    booking.Amount(),
		BookingID: booking.ID,
	})
	if err != nil {
		log.WithError(err).Warn("payment initiation failed, booking kept as pending")
		result.PaymentErr = err
		return result, nil
	}

	if payment.Linked {
		booking.CheckoutRequestID = payment.CheckoutRequestID
		booking.MerchantRequestID = payment.MerchantRequestID
	}
	result.Payment = payment
	return result, nil
}

func (s *BookingService) newBooking(req CreateBookingRequest) (*domain.Booking, error) {
	phone, err := mpesa.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.DepartureDate) == "" {
		return nil, fmt.Errorf("%w: departure date is required", ErrInvalidRequest)
	}
	if _, ok := parseDeparture(req.DepartureDate); !ok {
		return nil, fmt.Errorf("%w: unrecognized departure date %q", ErrInvalidRequest, req.DepartureDate)
	}

	seats := uniqueSeats(req.SelectedSeats)
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: at least one seat must be selected", ErrInvalidRequest)
	}

	return &domain.Booking{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(req.Name),
		PhoneNumber:   phone,
		Residence:     strings.TrimSpace(req.Residence),
		Route:         req.Route,
		DepartureDate: req.DepartureDate,
		DepartureTime: req.DepartureTime,
		SelectedSeats: seats,
		Seats:         len(seats),
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     s.now(),
	}, nil
}

// List returns every booking in creation order.
func (s *BookingService) List(ctx context.Context) ([]*domain.Booking, error) {
	return s.ledger.Snapshot(ctx)
}

// Get returns a booking by ID.
func (s *BookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	if id == "" {
		return nil, ErrInvalidBookingID
	}

	bookings, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	booking := findByID(bookings, id)
	if booking == nil {
		return nil, repository.ErrNotFound
	}
	return booking, nil
}

// MarkPaid is the manual override for payments reconciled outside the callback path.
// An empty code records domain.ManualPaymentCode.
func (s *BookingService) MarkPaid(ctx context.Context, id, code string) (*domain.Booking, error) {
	if id == "" {
		return nil, ErrInvalidBookingID
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = domain.ManualPaymentCode
	}

	var updated domain.Booking
	err := s.ledger.Update(ctx, func(bookings []*domain.Booking) ([]*domain.Booking, bool, error) {
		b := findByID(bookings, id)
		if b == nil {
			return nil, false, repository.ErrNotFound
		}
		if !b.Complete(code) {
			return nil, false, ErrAlreadyCompleted
		}
		updated = *b
		return bookings, true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"mpesa_code": code,
	}).Info("booking marked as paid manually")

	return &updated, nil
}

func uniqueSeats(seats []string) []string {
	seen := make(map[string]bool, len(seats))
	out := make([]string, 0, len(seats))
	for _, seat := range seats {
		seat = strings.TrimSpace(seat)
		if seat == "" || seen[seat] {
			continue
		}
		seen[seat] = true
		out = append(out, seat)
	}
	return out
}
