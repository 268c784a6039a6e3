package poller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
)

type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	replies []func() ([]*domain.Booking, error)
}

func (s *scriptedSource) Status(ctx context.Context, phone string) ([]*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i]()
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func pending(id string) *domain.Booking {
	return &domain.Booking{ID: id, PhoneNumber: "254712345678", PaymentStatus: domain.PaymentStatusPending}
}

func completed(id, code string) *domain.Booking {
	return &domain.Booking{ID: id, PhoneNumber: "254712345678", PaymentStatus: domain.PaymentStatusCompleted, MpesaCode: code}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// steppingClock advances by step every time it is read.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := t
		t = t.Add(step)
		return cur
	}
}

func TestPoller_CompletesWhenBookingIsPaid(t *testing.T) {
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) { return []*domain.Booking{pending("b-1")}, nil },
		func() ([]*domain.Booking, error) { return []*domain.Booking{pending("b-1")}, nil },
		func() ([]*domain.Booking, error) { return []*domain.Booking{completed("b-1", "NLJ7RT61SV")}, nil },
	}}
	p := New(src, time.Millisecond, time.Minute, quietLogger())

	out := p.Run(context.Background(), Target{Phone: "254712345678"})

	if out.State != StateCompleted {
		t.Fatalf("expected Completed, got %s", out.State)
	}
	if out.Booking == nil || out.Booking.MpesaCode != "NLJ7RT61SV" {
		t.Errorf("expected final receipt on outcome, got %+v", out.Booking)
	}
	if out.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", out.Attempts)
	}
}

func TestPoller_TimesOutOnNeverCompletingBooking(t *testing.T) {
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) { return []*domain.Booking{pending("b-1")}, nil },
	}}
	p := New(src, time.Millisecond, 5*time.Minute, quietLogger())
	p.now = steppingClock(30 * time.Second)

	out := p.Run(context.Background(), Target{Phone: "254712345678"})

	if out.State != StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", out.State)
	}
	if out.Booking == nil || out.Booking.ID != "b-1" || out.Booking.IsCompleted() {
		t.Errorf("expected last pending snapshot, got %+v", out.Booking)
	}
	if src.Calls() > 20 {
		t.Errorf("poller ran too long: %d calls", src.Calls())
	}
}

func TestPoller_QueryFailuresDoNotStopOrResetClock(t *testing.T) {
	queryErr := errors.New("connection refused")
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) { return nil, queryErr },
	}}
	fallback := pending("b-local")
	p := New(src, time.Millisecond, 5*time.Minute, quietLogger())
	p.now = steppingClock(time.Minute)

	out := p.Run(context.Background(), Target{Phone: "254712345678", Fallback: fallback})

	if out.State != StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", out.State)
	}
	if out.Attempts < 2 {
		t.Errorf("expected polling to continue after failures, got %d attempts", out.Attempts)
	}
	if !errors.Is(out.LastErr, queryErr) {
		t.Errorf("expected last error to be kept, got %v", out.LastErr)
	}
	if out.Booking != fallback {
		t.Errorf("expected fallback booking when nothing was observed, got %+v", out.Booking)
	}
}

func TestPoller_RecoversAfterTransientFailure(t *testing.T) {
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) { return nil, errors.New("timeout") },
		func() ([]*domain.Booking, error) { return []*domain.Booking{completed("b-1", "R1")}, nil },
	}}
	p := New(src, time.Millisecond, time.Minute, quietLogger())

	out := p.Run(context.Background(), Target{Phone: "254712345678"})

	if out.State != StateCompleted {
		t.Fatalf("expected Completed, got %s", out.State)
	}
}

func TestPoller_ObservesTargetBookingID(t *testing.T) {
	// Best match is another booking that is already paid; the target is still pending.
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) {
			return []*domain.Booking{completed("b-other", "R0"), pending("b-1")}, nil
		},
		func() ([]*domain.Booking, error) {
			return []*domain.Booking{completed("b-other", "R0"), completed("b-1", "R1")}, nil
		},
	}}
	p := New(src, time.Millisecond, time.Minute, quietLogger())

	out := p.Run(context.Background(), Target{Phone: "254712345678", BookingID: "b-1"})

	if out.State != StateCompleted || out.Booking.ID != "b-1" || out.Booking.MpesaCode != "R1" {
		t.Errorf("expected target booking completed, got %s %+v", out.State, out.Booking)
	}
	if out.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", out.Attempts)
	}
}

func TestTask_Cancel(t *testing.T) {
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) { return []*domain.Booking{pending("b-1")}, nil },
	}}
	p := New(src, time.Hour, 24*time.Hour, quietLogger())

	task := p.Start(context.Background(), Target{Phone: "254712345678"})
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop after Cancel")
	}

	out := task.Outcome()
	if out.State != StateCancelled {
		t.Errorf("expected Cancelled, got %s", out.State)
	}
	if task.State() != StateCancelled {
		t.Errorf("expected task state Cancelled, got %s", task.State())
	}
	task.Cancel()
}

func TestTask_StopsWithParentContext(t *testing.T) {
	src := &scriptedSource{replies: []func() ([]*domain.Booking, error){
		func() ([]*domain.Booking, error) { return []*domain.Booking{pending("b-1")}, nil },
	}}
	p := New(src, time.Hour, 24*time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	task := p.Start(ctx, Target{Phone: "254712345678"})
	cancel()

	if out := task.Outcome(); out.State != StateCancelled {
		t.Errorf("expected Cancelled, got %s", out.State)
	}
}

func TestAPIClient_StatusAndErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mpesa/status/254712345678", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"bookings":[{"id":"b-1","phoneNumber":"254712345678","paymentStatus":"Completed","mpesaCode":"R1"}]}`))
	})
	mux.HandleFunc("/mpesa/stk", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"STK push failed","details":"Bad Request - Invalid PhoneNumber"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewAPIClient(srv.URL, time.Second)

	bookings, err := client.Status(context.Background(), "254712345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bookings) != 1 || !bookings[0].IsCompleted() {
		t.Errorf("unexpected bookings %+v", bookings)
	}

	_, err = client.Initiate(context.Background(), "254712345678", 1000, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Details != "Bad Request - Invalid PhoneNumber" {
		t.Errorf("unexpected api error %+v", apiErr)
	}
}
