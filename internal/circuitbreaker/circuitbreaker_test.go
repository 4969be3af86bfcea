package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/push"
)

// fakeClock lets tests step past RecoveryTimeout without sleeping
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cb := New(cfg, zap.NewNop())
	cb.now = clock.now
	return cb, clock
}

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig("push"))
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}
	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestCircuitBreaker_OpensAndRejects(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "push", MaxFailures: 3, RecoveryTimeout: time.Minute})

	trip(cb, 3)
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}
	if cb.Allow() {
		t.Fatal("open circuit should reject")
	}
	if cb.Stats().TotalRejected != 1 {
		t.Errorf("expected 1 rejection, got %d", cb.Stats().TotalRejected)
	}
}

func TestCircuitBreaker_ProbeLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		probeOK   bool
		wantState State
	}{
		{"successful probe closes", true, StateClosed},
		{"failed probe reopens", false, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(Config{Name: "push", MaxFailures: 2, RecoveryTimeout: 30 * time.Second})
			trip(cb, 2)

			clock.advance(29 * time.Second)
			if cb.Allow() {
				t.Fatal("probe allowed before recovery timeout")
			}

			clock.advance(time.Second)
			if !cb.Allow() {
				t.Fatal("probe should be allowed after recovery timeout")
			}
			if cb.GetState() != StateHalfOpen {
				t.Fatalf("expected half-open, got %s", cb.GetState())
			}
			if cb.Allow() {
				t.Fatal("only one probe allowed while half-open")
			}

			if tt.probeOK {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}
			if cb.GetState() != tt.wantState {
				t.Errorf("expected %s, got %s", tt.wantState, cb.GetState())
			}
		})
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "push", MaxFailures: 3})

	trip(cb, 2)
	cb.Allow()
	cb.RecordSuccess()
	trip(cb, 2)

	if cb.GetState() != StateClosed {
		t.Fatal("success should have reset the failure count")
	}
}

func TestCircuitBreaker_ResetAndStats(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "push-fcm", MaxFailures: 2, RecoveryTimeout: time.Hour})

	cb.Allow()
	cb.RecordSuccess()
	trip(cb, 2)

	stats := cb.Stats()
	if stats.Name != "push-fcm" || stats.State != "open" {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.TotalRequests != 3 || stats.TotalSuccesses != 1 || stats.TotalFailures != 2 {
		t.Errorf("unexpected counters %+v", stats)
	}
	if stats.LastFailure == "" {
		t.Error("expected last failure timestamp")
	}

	cb.Reset()
	if cb.GetState() != StateClosed || !cb.Allow() {
		t.Fatal("reset should close the circuit")
	}
}

func TestCircuitBreaker_ConfigDefaults(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "push"})
	if cb.config.MaxFailures != 5 || cb.config.RecoveryTimeout != 30*time.Second || cb.config.HalfOpenMaxRequests != 1 {
		t.Errorf("unexpected defaults %+v", cb.config)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %s, want %s", tt.s, got, tt.want)
		}
	}
}

type mockSender struct {
	err   error
	calls int
}

func (m *mockSender) Send(ctx context.Context, env push.Envelope) (push.SendResult, error) {
	m.calls++
	if m.err != nil {
		return push.SendResult{Error: m.err.Error()}, m.err
	}
	return push.SendResult{Success: true, MessageID: "id-1"}, nil
}

func testEnvelope() push.Envelope {
	return push.Envelope{Token: "device", Notification: push.Notification{Title: "t", Body: "b"}}
}

func TestProtectedSender_PassesThrough(t *testing.T) {
	mock := &mockSender{}
	cb, _ := newTestBreaker(Config{Name: "push", MaxFailures: 5})
	ps := NewProtectedSender(mock, cb, zap.NewNop())

	res, err := ps.Send(context.Background(), testEnvelope())
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v, err %v", res, err)
	}
	if mock.calls != 1 || cb.Stats().TotalSuccesses != 1 {
		t.Errorf("calls=%d successes=%d", mock.calls, cb.Stats().TotalSuccesses)
	}
}

func TestProtectedSender_FailFastWhenOpen(t *testing.T) {
	mock := &mockSender{err: &push.TransportError{Code: push.CodeUnavailable, Message: "down"}}
	cb, _ := newTestBreaker(Config{Name: "push", MaxFailures: 2, RecoveryTimeout: time.Minute})
	ps := NewProtectedSender(mock, cb, zap.NewNop())

	ps.Send(context.Background(), testEnvelope())
	ps.Send(context.Background(), testEnvelope())
	mock.calls = 0

	res, err := ps.Send(context.Background(), testEnvelope())
	if !errors.Is(err, ErrCircuitOpen) || !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("expected circuit open transport error, got: %v", err)
	}
	if res.Code != push.CodeCircuitOpen {
		t.Errorf("expected code %s, got %s", push.CodeCircuitOpen, res.Code)
	}
	if mock.calls != 0 {
		t.Fatalf("sender called %d times while open", mock.calls)
	}
}

func TestProtectedSender_RecipientErrorsDoNotTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unregistered token", &push.TransportError{Code: push.CodeUnregistered, Message: "gone"}},
		{"invalid argument", &push.TransportError{Code: push.CodeInvalidArgument, Message: "bad"}},
		{"missing token", apperr.Missing("recipientToken")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSender{err: tt.err}
			cb, _ := newTestBreaker(Config{Name: "push", MaxFailures: 2})
			ps := NewProtectedSender(mock, cb, zap.NewNop())

			for i := 0; i < 5; i++ {
				if _, err := ps.Send(context.Background(), testEnvelope()); err == nil {
					t.Fatal("error should still be returned to the caller")
				}
			}
			if cb.GetState() != StateClosed {
				t.Errorf("recipient errors should not open the circuit")
			}
		})
	}
}

func TestProtectedSender_Recovers(t *testing.T) {
	mock := &mockSender{err: errors.New("connection refused")}
	cb, clock := newTestBreaker(Config{Name: "push", MaxFailures: 3, RecoveryTimeout: 10 * time.Second})
	ps := NewProtectedSender(mock, cb, zap.NewNop())

	for i := 0; i < 3; i++ {
		ps.Send(context.Background(), testEnvelope())
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	clock.advance(10 * time.Second)
	mock.err = nil

	if _, err := ps.Send(context.Background(), testEnvelope()); err != nil {
		t.Fatalf("probe should succeed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after probe, got %s", cb.GetState())
	}
	if ps.Breaker() != cb {
		t.Error("Breaker() should expose the wrapped breaker")
	}
}
