package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepay/internal/domain"
	"ridepay/internal/mpesa"
	"ridepay/internal/service"
)

// BookingHandler handles HTTP requests for seat bookings.
type BookingHandler struct {
	bookingService *service.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookingService *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBookingRequest is the HTTP request body for creating a booking.
type CreateBookingRequest struct {
	Name          string   `json:"name"`
	PhoneNumber   string   `json:"phoneNumber"`
	Residence     string   `json:"residence"`
	Route         string   `json:"route"`
	DepartureDate string   `json:"departureDate"`
	DepartureTime string   `json:"departureTime"`
	SelectedSeats []string `json:"selectedSeats"`
	MpesaPhone    string   `json:"mpesaPhone,omitempty"`
}

// ManualPaymentRequest is the optional body of a manual payment override.
type ManualPaymentRequest struct {
	MpesaCode string `json:"mpesaCode"`
}

// PaymentSummary reports the push payment started alongside a booking.
type PaymentSummary struct {
	Initiated         bool   `json:"initiated"`
	CheckoutRequestID string `json:"checkoutRequestID,omitempty"`
	MerchantRequestID string `json:"merchantRequestID,omitempty"`
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
	Details           string `json:"details,omitempty"`
}

// BookingResponse is the HTTP response for a single booking.
type BookingResponse struct {
	Success bool            `json:"success"`
	Booking *domain.Booking `json:"booking"`
	Payment *PaymentSummary `json:"payment,omitempty"`
}

// BookingListResponse is the HTTP response for listing bookings.
type BookingListResponse struct {
	Success  bool              `json:"success"`
	Bookings []*domain.Booking `json:"bookings"`
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	result, err := h.bookingService.Submit(c.Request.Context(), service.CreateBookingRequest{
		Name:          req.Name,
		PhoneNumber:   req.PhoneNumber,
		Residence:     req.Residence,
		Route:         req.Route,
		DepartureDate: req.DepartureDate,
		DepartureTime: req.DepartureTime,
		SelectedSeats: req.SelectedSeats,
		MpesaPhone:    req.MpesaPhone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := BookingResponse{Success: true, Booking: result.Booking}
	switch {
	case result.Payment != nil:
		resp.Payment = &PaymentSummary{
			Initiated:         true,
			CheckoutRequestID: result.Payment.CheckoutRequestID,
			MerchantRequestID: result.Payment.MerchantRequestID,
			Message:           result.Payment.CustomerMessage,
		}
	case result.PaymentErr != nil:
		resp.Payment = &PaymentSummary{Error: result.PaymentErr.Error()}
		var gwErr *mpesa.GatewayError
		if errors.As(result.PaymentErr, &gwErr) {
			resp.Payment.Error = gatewayMessage(gwErr.Op)
			resp.Payment.Details = gwErr.Details()
		}
	}

	respondJSON(c, http.StatusCreated, resp)
}

// GetAll handles GET /bookings
func (h *BookingHandler) GetAll(c *gin.Context) {
	bookings, err := h.bookingService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}

	respondJSON(c, http.StatusOK, BookingListResponse{Success: true, Bookings: bookings})
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookingService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, BookingResponse{Success: true, Booking: booking})
}

// GetReceipt handles GET /bookings/:id/receipt
func (h *BookingHandler) GetReceipt(c *gin.Context) {
	booking, err := h.bookingService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.String(http.StatusOK, service.FormatReceipt(booking))
}

// MarkPaid handles POST /bookings/:id/manual-payment
func (h *BookingHandler) MarkPaid(c *gin.Context) {
	var req ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	booking, err := h.bookingService.MarkPaid(c.Request.Context(), c.Param("id"), req.MpesaCode)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, BookingResponse{Success: true, Booking: booking})
}
