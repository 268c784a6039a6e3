package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type memoryResponseStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryResponseStore) GetResponse(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryResponseStore) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = data
	return nil
}

func newCallbackRouter(t *testing.T, cfg CallbackAuthConfig) *gin.Engine {
	t.Helper()
	auth, err := CallbackAuth(cfg, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := gin.New()
	r.POST("/mpesa/callback", auth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ResponseCode": "00000000"})
	})
	return r
}

func TestCallbackAuth_DisabledWhenUnconfigured(t *testing.T) {
	r := newCallbackRouter(t, CallbackAuthConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mpesa/callback", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestCallbackAuth_Token(t *testing.T) {
	r := newCallbackRouter(t, CallbackAuthConfig{Token: "s3cret"})

	testCases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/mpesa/callback", "", http.StatusUnauthorized},
		{"wrong query", "/mpesa/callback?token=nope", "", http.StatusUnauthorized},
		{"query", "/mpesa/callback?token=s3cret", "", http.StatusOK},
		{"header", "/mpesa/callback", "s3cret", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(callbackTokenHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestCallbackAuth_AllowedCIDRs(t *testing.T) {
	r := newCallbackRouter(t, CallbackAuthConfig{AllowedCIDRs: []string{"196.201.214.0/24", "10.0.0.7"}})

	testCases := []struct {
		remote string
		want   int
	}{
		{"196.201.214.200:443", http.StatusOK},
		{"10.0.0.7:1234", http.StatusOK},
		{"10.0.0.8:1234", http.StatusUnauthorized},
		{"203.0.113.9:80", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		req := httptest.NewRequest(http.MethodPost, "/mpesa/callback", nil)
		req.RemoteAddr = tc.remote
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.remote, tc.want, w.Code)
		}
	}
}

func TestParseCIDRs_RejectsGarbage(t *testing.T) {
	if _, err := ParseCIDRs([]string{"not-an-ip"}); err == nil {
		t.Error("expected error for invalid address")
	}
	if _, err := CallbackAuth(CallbackAuthConfig{AllowedCIDRs: []string{"10.0.0.0/99"}}, quietLogger()); err == nil {
		t.Error("expected error for invalid cidr")
	}
}

func TestIdempotencyMiddleware_ReplaysRecordedResponse(t *testing.T) {
	store := &memoryResponseStore{}
	calls := 0

	r := gin.New()
	r.Use(IdempotencyMiddleware(store, quietLogger()))
	r.POST("/mpesa/stk", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"success": true, "call": calls})
	})

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mpesa/stk", nil)
		if key != "" {
			req.Header.Set(idempotencyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send("k-1")
	second := send("k-1")

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("expected replayed body %q, got %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay marker header")
	}

	send("")
	send("")
	if calls != 3 {
		t.Errorf("expected requests without a key to always run, got %d calls", calls)
	}
}

func TestIdempotencyMiddleware_DoesNotRecordServerErrors(t *testing.T) {
	store := &memoryResponseStore{}
	calls := 0

	r := gin.New()
	r.Use(IdempotencyMiddleware(store, quietLogger()))
	r.POST("/mpesa/stk", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mpesa/stk", nil)
		req.Header.Set(idempotencyHeader, "k-2")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Errorf("expected failed requests to be retried, got %d calls", calls)
	}
}

func TestRequestID_EchoesOrGenerates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(quietLogger()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "req-42" || w.Header().Get(requestIDHeader) != "req-42" {
		t.Errorf("expected caller request id to be kept, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Body.String() == "" {
		t.Error("expected a generated request id")
	}
}
