package mpesa

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPhone is returned when a phone number cannot be normalized to 2547XXXXXXXX form.
	ErrInvalidPhone = errors.New("invalid phone number format, use 07... or 254...")

	// ErrInvalidAmount is returned when the amount is not a positive integer.
	ErrInvalidAmount = errors.New("amount must be a positive integer")

	// ErrInvalidCallback is returned when a callback has no Body.stkCallback envelope.
	ErrInvalidCallback = errors.New("invalid callback format")

	// ErrIncompleteCallback is returned when a successful callback lacks the receipt or phone.
	ErrIncompleteCallback = errors.New("incomplete callback data")
)

// GatewayError is returned when a gateway call fails or the gateway rejects the request.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("mpesa %s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("mpesa %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("mpesa %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Details returns the upstream detail worth surfacing to the caller.
func (e *GatewayError) Details() string {
	if e.Body != "" {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}
