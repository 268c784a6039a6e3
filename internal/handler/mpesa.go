package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
	"ridepay/internal/mpesa"
	"ridepay/internal/service"
)

// MpesaHandler handles the M-Pesa endpoints: token, push initiation, callback and status.
type MpesaHandler struct {
	payments *service.PaymentService
	logger   logrus.FieldLogger
}

// NewMpesaHandler creates a new MpesaHandler.
func NewMpesaHandler(payments *service.PaymentService, logger logrus.FieldLogger) *MpesaHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MpesaHandler{payments: payments, logger: logger}
}

// TokenResponse is the HTTP response for a token request.
type TokenResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
}

// STKRequest is the HTTP request body for a push payment.
// Amount accepts a JSON number or a numeric string.
type STKRequest struct {
	Phone     string      `json:"phone"`
	Amount    json.Number `json:"amount"`
	BookingID string      `json:"bookingId,omitempty"`
}

// STKResponse is the HTTP response for an accepted push payment.
type STKResponse struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message"`
	CheckoutRequestID string          `json:"checkoutRequestID"`
	MerchantRequestID string          `json:"merchantRequestID"`
	Response          json.RawMessage `json:"response,omitempty"`
}

// StatusResponse lists the bookings for a phone number.
type StatusResponse struct {
	Success  bool              `json:"success"`
	Bookings []*domain.Booking `json:"bookings"`
}

// AttemptResponse is the HTTP response for a payment attempt lookup.
type AttemptResponse struct {
	Success bool                   `json:"success"`
	Attempt *domain.PaymentAttempt `json:"attempt"`
}

// Token handles GET /mpesa/token
func (h *MpesaHandler) Token(c *gin.Context) {
	token, err := h.payments.Token(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, TokenResponse{Success: true, AccessToken: token})
}

// STK handles POST /mpesa/stk
func (h *MpesaHandler) STK(c *gin.Context) {
	var req STKRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	if req.Phone == "" || req.Amount == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "phone and amount are required"})
		return
	}

	amount, err := req.Amount.Int64()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: mpesa.ErrInvalidAmount.Error()})
		return
	}

	result, err := h.payments.Initiate(c.Request.Context(), service.InitiateRequest{
		Phone:     req.Phone,
		Amount:    int(amount),
		BookingID: req.BookingID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, STKResponse{
		Success:           true,
		Message:           "STK push sent successfully",
		CheckoutRequestID: result.CheckoutRequestID,
		MerchantRequestID: result.MerchantRequestID,
		Response:          result.Response,
	})
}

// Callback handles POST /mpesa/callback
// Any structurally valid callback is acknowledged, whatever its booking-level outcome.
func (h *MpesaHandler) Callback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, mpesa.ErrInvalidCallback)
		return
	}

	report, err := h.payments.HandleCallback(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, mpesa.ErrInvalidCallback) || errors.Is(err, mpesa.ErrIncompleteCallback) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"checkout_request_id": report.Result.CheckoutRequestID,
		"outcome":             report.Outcome,
	}).Debug("callback acknowledged")

	respondJSON(c, http.StatusOK, mpesa.SuccessAck)
}

// Status handles GET /mpesa/status/:phone
func (h *MpesaHandler) Status(c *gin.Context) {
	bookings, err := h.payments.Status(c.Request.Context(), c.Param("phone"))
	if err != nil {
		respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}

	respondJSON(c, http.StatusOK, StatusResponse{Success: true, Bookings: bookings})
}

// Attempt handles GET /mpesa/attempts/:checkoutRequestId
func (h *MpesaHandler) Attempt(c *gin.Context) {
	attempt, err := h.payments.Attempt(c.Request.Context(), c.Param("checkoutRequestId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, AttemptResponse{Success: true, Attempt: attempt})
}
