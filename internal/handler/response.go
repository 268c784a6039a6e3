package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepay/internal/mpesa"
	"ridepay/internal/repository"
	"ridepay/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Gateway failures carry the upstream body in details.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	resp := ErrorResponse{Error: err.Error()}

	var gwErr *mpesa.GatewayError
	if errors.As(err, &gwErr) {
		resp.Error = gatewayMessage(gwErr.Op)
		resp.Details = gwErr.Details()
	}

	_ = c.Error(err)
	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, mpesa.ErrInvalidPhone),
		errors.Is(err, mpesa.ErrInvalidAmount),
		errors.Is(err, mpesa.ErrInvalidCallback),
		errors.Is(err, mpesa.ErrIncompleteCallback):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict

	// Default to internal server error (gateway and store failures)
	default:
		return http.StatusInternalServerError
	}
}

func gatewayMessage(op string) string {
	switch op {
	case "token":
		return "Failed to get access token"
	case "stkpush":
		return "Failed to initiate STK push"
	default:
		return "M-Pesa request failed"
	}
}
