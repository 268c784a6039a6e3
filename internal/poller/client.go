package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ridepay/internal/domain"
)

// APIError is a non-2xx reply from the ridepay server.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("server returned %d: %s (%s)", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// APIClient calls the ridepay HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Status implements StatusSource against GET /mpesa/status/:phone.
func (c *APIClient) Status(ctx context.Context, phone string) ([]*domain.Booking, error) {
	var out struct {
		envelope
		Bookings []*domain.Booking `json:"bookings"`
	}
	if err := c.call(ctx, http.MethodGet, "/mpesa/status/"+url.PathEscape(phone), nil, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

// PushResult is the server's reply to POST /mpesa/stk.
type PushResult struct {
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	MerchantRequestID string `json:"merchantRequestID"`
}

// Initiate asks the server to send a push payment prompt. bookingID may be empty.
func (c *APIClient) Initiate(ctx context.Context, phone string, amount int, bookingID string) (*PushResult, error) {
	body := map[string]any{"phone": phone, "amount": amount}
	if bookingID != "" {
		body["bookingId"] = bookingID
	}

	var out struct {
		envelope
		PushResult
	}
	if err := c.call(ctx, http.MethodPost, "/mpesa/stk", body, &out); err != nil {
		return nil, err
	}
	return &out.PushResult, nil
}

// Booking fetches a single booking.
func (c *APIClient) Booking(ctx context.Context, id string) (*domain.Booking, error) {
	var out struct {
		envelope
		Booking *domain.Booking `json:"booking"`
	}
	if err := c.call(ctx, http.MethodGet, "/bookings/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Booking, nil
}

func (c *APIClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		if env.Error == "" {
			env.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, Details: env.Details}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
