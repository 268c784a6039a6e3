// Package poller implements the client-side loop that waits for a push payment to be reconciled.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ridepay/internal/domain"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 5 * time.Minute
)

// State is the poller's lifecycle state.
type State string

const (
	StateIdle      State = "Idle"
	StatePolling   State = "Polling"
	StateCompleted State = "Completed"
	StateTimedOut  State = "TimedOut"
	StateCancelled State = "Cancelled"
)

// StatusSource returns the bookings for a phone number, best match first.
type StatusSource interface {
	Status(ctx context.Context, phone string) ([]*domain.Booking, error)
}

// Target identifies the booking being paid for.
type Target struct {
	Phone     string
	BookingID string // optional; without it the best match for Phone is observed

	// Fallback is surfaced when nothing was ever observed before the loop stopped.
	Fallback *domain.Booking
}

// Outcome is the terminal result of a polling task.
type Outcome struct {
	State    State
	Booking  *domain.Booking // final booking, or the last known snapshot
	Attempts int
	LastErr  error
}

// Poller repeatedly queries payment status until completion, timeout or cancellation.
type Poller struct {
	source   StatusSource
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   logrus.FieldLogger
}

// New creates a Poller. Non-positive interval or timeout fall back to the defaults.
func New(source StatusSource, interval, timeout time.Duration, logger logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{
		source:   source,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
	}
}

// Run polls until a terminal state is reached. It blocks the caller.
func (p *Poller) Run(ctx context.Context, target Target) Outcome {
	return p.run(ctx, target, nil)
}

func (p *Poller) run(ctx context.Context, target Target, onState func(State)) Outcome {
	setState := func(s State) {
		if onState != nil {
			onState(s)
		}
	}

	out := Outcome{State: StatePolling, Booking: target.Fallback}
	setState(StatePolling)

	log := p.logger.WithFields(logrus.Fields{
		"phone":      target.Phone,
		"booking_id": target.BookingID,
	})

	start := p.now()
	for {
		out.Attempts++

		bookings, err := p.source.Status(ctx, target.Phone)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				out.State = StateCancelled
				setState(out.State)
				return out
			}
			out.LastErr = err
			log.WithError(err).Warn("status query failed")
		default:
			if b := pick(bookings, target.BookingID); b != nil {
				out.Booking = b
				if b.IsCompleted() {
					out.State = StateCompleted
					setState(out.State)
					return out
				}
			}
		}

		if p.now().Sub(start) > p.timeout {
			log.WithField("attempts", out.Attempts).Info("payment not confirmed before timeout")
			out.State = StateTimedOut
			setState(out.State)
			return out
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			out.State = StateCancelled
			setState(out.State)
			return out
		case <-timer.C:
		}
	}
}

// pick selects the observed booking: the one with bookingID if given, else the best match.
func pick(bookings []*domain.Booking, bookingID string) *domain.Booking {
	if bookingID != "" {
		for _, b := range bookings {
			if b.ID == bookingID {
				return b
			}
		}
		return nil
	}
	if len(bookings) == 0 {
		return nil
	}
	return bookings[0]
}

// Task is a polling loop running in the background.
type Task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	state   State
	outcome Outcome
}

// Start runs the poller in a new goroutine. Cancelling ctx or calling Cancel stops it.
func (p *Poller) Start(ctx context.Context, target Target) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}

	go func() {
		defer close(t.done)
		defer cancel()
		out := p.run(ctx, target, t.setState)

		t.mu.Lock()
		t.outcome = out
		t.mu.Unlock()
	}()

	return t
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cancel stops the task. It is safe to call more than once.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome blocks until the task finishes and returns its result.
func (t *Task) Outcome() Outcome {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}
