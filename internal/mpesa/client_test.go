package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGateway struct {
	mu          sync.Mutex
	server      *httptest.Server
	tokenCalls  int32
	stkCalls    int32
	lastPayload stkPushPayload
	lastAuth    string
	stkStatus   int
	stkBody     string
	delay       time.Duration
}

func (g *fakeGateway) wait(r *http.Request) {
	if g.delay <= 0 {
		return
	}
	select {
	case <-time.After(g.delay):
	case <-r.Context().Done():
	}
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		stkStatus: http.StatusOK,
		stkBody:   `{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.tokenCalls, 1)
		g.wait(r)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorCode":"401.002.01","errorMessage":"Error Occurred - Invalid Access Token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.stkCalls, 1)
		g.wait(r)
		g.mu.Lock()
		defer g.mu.Unlock()
		g.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&g.lastPayload)
		w.WriteHeader(g.stkStatus)
		_, _ = w.Write([]byte(g.stkBody))
	})

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		ConsumerKey:      "key",
		ConsumerSecret:   "secret",
		ShortCode:        "174379",
		Passkey:          "passkey",
		CallbackURL:      "https://example.com/mpesa/callback",
		AccountReference: "Luxury Rides",
		TransactionDesc:  "Payment for booking",
		Timeout:          2 * time.Second,
	}
}

type memoryTokenCache struct {
	token string
	ttl   time.Duration
}

func (m *memoryTokenCache) GetToken(ctx context.Context) (string, error) { return m.token, nil }

func (m *memoryTokenCache) SetToken(ctx context.Context, token string, ttl time.Duration) error {
	m.token, m.ttl = token, ttl
	return nil
}

func TestPassword_IsBase64OfShortCodePasskeyTimestamp(t *testing.T) {
	got := Password("174379", "passkey", "20240501120000")
	// base64("174379passkey20240501120000")
	want := "MTc0Mzc5cGFzc2tleTIwMjQwNTAxMTIwMDAw"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestTimestamp_UsesConfiguredLocation(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	cfg := testConfig("http://unused")
	cfg.Location = nairobi

	fixed := time.Date(2024, 5, 1, 21, 30, 5, 0, time.UTC)
	client := NewClient(cfg, WithClock(func() time.Time { return fixed }))

	if got := client.Timestamp(); got != "20240502003005" {
		t.Errorf("expected 20240502003005, got %s", got)
	}
}

func TestSTKPush_SignsAndSubmitsRequest(t *testing.T) {
	g := newFakeGateway(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := NewClient(testConfig(g.server.URL), WithClock(func() time.Time { return fixed }))

	resp, err := client.STKPush(context.Background(), STKPushRequest{Phone: "0712345678", Amount: 2000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.CheckoutRequestID != "ws_CO_191220191020363925" {
		t.Errorf("unexpected checkout id %q", resp.CheckoutRequestID)
	}
	if resp.MerchantRequestID != "29115-34620561-1" {
		t.Errorf("unexpected merchant id %q", resp.MerchantRequestID)
	}
	if len(resp.Raw) == 0 {
		t.Error("expected raw response body to be kept")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastAuth != "Bearer tok-123" {
		t.Errorf("expected bearer token, got %q", g.lastAuth)
	}

	p := g.lastPayload
	if p.PhoneNumber != "254712345678" || p.PartyA != "254712345678" {
		t.Errorf("expected normalized phone, got PartyA=%s PhoneNumber=%s", p.PartyA, p.PhoneNumber)
	}
	if p.PartyB != "174379" || p.BusinessShortCode != "174379" {
		t.Errorf("unexpected merchant short code: %+v", p)
	}
	if p.Amount != 2000 {
		t.Errorf("expected amount 2000, got %d", p.Amount)
	}
	if p.Timestamp != "20240501120000" {
		t.Errorf("unexpected timestamp %s", p.Timestamp)
	}
	if p.Password != Password("174379", "passkey", "20240501120000") {
		t.Errorf("unexpected password %s", p.Password)
	}
	if p.TransactionType != "CustomerPayBillOnline" {
		t.Errorf("unexpected transaction type %s", p.TransactionType)
	}
	if p.CallBackURL != "https://example.com/mpesa/callback" {
		t.Errorf("unexpected callback url %s", p.CallBackURL)
	}
}

func TestSTKPush_InvalidInputMakesNoNetworkCall(t *testing.T) {
	g := newFakeGateway(t)
	client := NewClient(testConfig(g.server.URL))

	testCases := []struct {
		name   string
		phone  string
		amount int
		want   error
	}{
		{"missing phone", "", 1000, ErrInvalidPhone},
		{"short phone", "07123", 1000, ErrInvalidPhone},
		{"zero amount", "0712345678", 0, ErrInvalidAmount},
		{"negative amount", "0712345678", -5, ErrInvalidAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.STKPush(context.Background(), STKPushRequest{Phone: tc.phone, Amount: tc.amount})
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if n := atomic.LoadInt32(&g.tokenCalls) + atomic.LoadInt32(&g.stkCalls); n != 0 {
		t.Errorf("expected no gateway calls, got %d", n)
	}
}

func TestSTKPush_GatewayRejectionSurfacesBody(t *testing.T) {
	g := newFakeGateway(t)
	g.stkStatus = http.StatusBadRequest
	g.stkBody = `{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`
	client := NewClient(testConfig(g.server.URL))

	_, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1000})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", gwErr.StatusCode)
	}
	if gwErr.Details() != g.stkBody {
		t.Errorf("expected gateway body in details, got %q", gwErr.Details())
	}
}

func TestSTKPush_NonZeroResponseCodeIsGatewayError(t *testing.T) {
	g := newFakeGateway(t)
	g.stkBody = `{"ResponseCode":"1","ResponseDescription":"Rejected"}`
	client := NewClient(testConfig(g.server.URL))

	_, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1000})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestToken_BadCredentialsIsGatewayError(t *testing.T) {
	g := newFakeGateway(t)
	cfg := testConfig(g.server.URL)
	cfg.ConsumerSecret = "wrong"
	client := NewClient(cfg)

	_, err := client.Token(context.Background())

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", gwErr.StatusCode)
	}
}

func TestToken_FetchedPerCallWithoutCache(t *testing.T) {
	g := newFakeGateway(t)
	client := NewClient(testConfig(g.server.URL))

	for i := 0; i < 2; i++ {
		if _, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1000}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := atomic.LoadInt32(&g.tokenCalls); n != 2 {
		t.Errorf("expected 2 token fetches, got %d", n)
	}
}

func TestToken_CacheHitSkipsOAuthCall(t *testing.T) {
	g := newFakeGateway(t)
	cache := &memoryTokenCache{}
	client := NewClient(testConfig(g.server.URL), WithTokenCache(cache))

	for i := 0; i < 3; i++ {
		if _, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1000}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := atomic.LoadInt32(&g.tokenCalls); n != 1 {
		t.Errorf("expected a single token fetch, got %d", n)
	}
	if cache.ttl != 3599*time.Second-tokenExpirySkew {
		t.Errorf("unexpected cache ttl %v", cache.ttl)
	}
}

func TestSTKPush_GatewayUnreachable(t *testing.T) {
	g := newFakeGateway(t)
	url := g.server.URL
	g.server.Close()

	client := NewClient(testConfig(url))
	_, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1000})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.Op != "token" {
		t.Errorf("expected failure on token op, got %s", gwErr.Op)
	}
}

func TestSTKPush_TokenAndPushShareOneTimeout(t *testing.T) {
	g := newFakeGateway(t)
	// Each call fits the timeout on its own, both together do not.
	g.delay = 250 * time.Millisecond
	cfg := testConfig(g.server.URL)
	cfg.Timeout = 400 * time.Millisecond
	client := NewClient(cfg)

	start := time.Now()
	_, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1000})
	elapsed := time.Since(start)

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.Op != "stkpush" {
		t.Errorf("expected the push to run out of time, got op %s", gwErr.Op)
	}
	if elapsed > 2*cfg.Timeout {
		t.Errorf("expected the push to give up within the timeout, took %v", elapsed)
	}
}
