package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"

	timestampLayout = "20060102150405"

	// tokenExpirySkew is subtracted from the gateway's expires_in before caching a token.
	tokenExpirySkew = 60 * time.Second
)

// Config holds the gateway credentials and merchant identifiers.
type Config struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	Passkey          string
	CallbackURL      string
	AccountReference string
	TransactionDesc  string
	Timeout          time.Duration
	Location         *time.Location
}

// TokenCache stores the short-lived bearer credential between initiations.
// GetToken returns an empty string on a cache miss.
type TokenCache interface {
	GetToken(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string, ttl time.Duration) error
}

// Client talks to the M-Pesa Daraja API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      TokenCache
	now        func() time.Time
	logger     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithTokenCache caches bearer credentials until shortly before they expire.
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithTransport replaces the underlying HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = newrelic.NewRoundTripper(rt) }
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new gateway client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newrelic.NewRoundTripper(nil),
		},
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the body returned by the OAuth endpoint.
type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// Token returns a bearer credential, from the cache when one is configured and still valid.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.cache != nil {
		token, err := c.cache.GetToken(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("token cache read failed, fetching a new token")
		} else if token != "" {
			return token, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &GatewayError{Op: "token", Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var tr tokenResponse
	if _, err := c.do(req, "token", &tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", &GatewayError{Op: "token", StatusCode: http.StatusOK, Body: "response carried no access_token"}
	}

	if c.cache != nil {
		if secs, err := tr.ExpiresIn.Int64(); err == nil {
			if ttl := time.Duration(secs)*time.Second - tokenExpirySkew; ttl > 0 {
				if err := c.cache.SetToken(ctx, tr.AccessToken, ttl); err != nil {
					c.logger.WithError(err).Warn("token cache write failed")
				}
			}
		}
	}

	return tr.AccessToken, nil
}

// STKPushRequest is a push-payment request for a single payer.
type STKPushRequest struct {
	Phone  string
	Amount int
}

// STKPushResponse is the gateway's synchronous acknowledgement of a push request.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	// Raw is the response body exactly as the gateway sent it.
	Raw json.RawMessage `json:"-"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks the gateway to prompt the payer's handset for the given amount.
// The token fetch and the push share a single Timeout budget.
// The final result arrives later on the configured callback URL.
func (c *Client) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResponse, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.Timestamp()
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            in.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  c.cfg.AccountReference,
		TransactionDesc:   c.cfg.TransactionDesc,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Op: "stkpush", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPath, bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Op: "stkpush", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp STKPushResponse
	raw, err := c.do(req, "stkpush", &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw

	if resp.ResponseCode != "" && resp.ResponseCode != "0" {
		return nil, &GatewayError{Op: "stkpush", StatusCode: http.StatusOK, Body: string(raw)}
	}
	if resp.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: "stkpush", StatusCode: http.StatusOK, Body: string(raw)}
	}

	return &resp, nil
}

// Timestamp returns the current gateway timestamp in YYYYMMDDHHmmss form.
func (c *Client) Timestamp() string {
	return c.now().In(c.cfg.Location).Format(timestampLayout)
}

// Password returns the request signature: base64(shortCode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// do executes the request and decodes a 2xx JSON body into out.
// Non-2xx responses become a GatewayError carrying the upstream body.
func (c *Client) do(req *http.Request, op string, out any) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	c.logger.WithFields(logrus.Fields{
		"op":     op,
		"status": resp.StatusCode,
	}).Debug("mpesa call succeeded")

	return raw, nil
}
