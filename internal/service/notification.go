package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentRequested NotificationType = "PAYMENT_REQUESTED"
	NotificationPaymentCompleted NotificationType = "PAYMENT_COMPLETED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type      NotificationType
	Recipient string // payer phone number
	Title     string
	Message   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// NotificationService tells payers what happened to their payment.
type NotificationService struct {
	logger logrus.FieldLogger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger logrus.FieldLogger) *NotificationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NotificationService{logger: logger}
}

// NotifyPaymentRequested tells the payer to expect the M-Pesa prompt on their handset.
func (s *NotificationService) NotifyPaymentRequested(ctx context.Context, phone string, amount int, checkoutRequestID string) error {
	return s.send(ctx, Notification{
		Type:      NotificationPaymentRequested,
		Recipient: phone,
		Title:     "M-Pesa Payment Requested",
		Message:   fmt.Sprintf("Enter your M-Pesa PIN to pay KES %d", amount),
		Data: map[string]interface{}{
			"checkout_request_id": checkoutRequestID,
			"amount":              amount,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPaymentCompleted confirms a reconciled payment.
func (s *NotificationService) NotifyPaymentCompleted(ctx context.Context, booking *domain.Booking) error {
	return s.send(ctx, Notification{
		Type:      NotificationPaymentCompleted,
		Recipient: booking.PhoneNumber,
		Title:     "Payment Received",
		Message:   fmt.Sprintf("Payment for %s on %s confirmed. M-Pesa code %s", booking.Route, booking.DepartureDate, booking.MpesaCode),
		Data: map[string]interface{}{
			"booking_id": booking.ID,
			"mpesa_code": booking.MpesaCode,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPaymentFailed reports a failed or cancelled push payment.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, result domain.CallbackResult) error {
	return s.send(ctx, Notification{
		Type:      NotificationPaymentFailed,
		Recipient: result.Phone,
		Title:     "Payment Not Completed",
		Message:   result.ResultDesc,
		Data: map[string]interface{}{
			"checkout_request_id": result.CheckoutRequestID,
			"result_code":         result.ResultCode,
		},
		CreatedAt: time.Now(),
	})
}

// send delivers a notification. Delivery is a log line until an SMS provider is wired in.
func (s *NotificationService) send(ctx context.Context, n Notification) error {
	s.logger.WithFields(logrus.Fields{
		"type":      n.Type,
		"recipient": n.Recipient,
		"title":     n.Title,
	}).Info(n.Message)
	return nil
}
