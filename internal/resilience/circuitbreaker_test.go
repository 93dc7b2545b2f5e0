package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errDown = errors.New("server down")

func newTestBreaker(threshold int) (*CircuitBreaker, *time.Time) {
	now := time.Unix(1700000000, 0)
	cfg := &CircuitBreakerConfig{
		Name:                "test",
		FailureThreshold:    threshold,
		SuccessThreshold:    2,
		Timeout:             time.Minute,
		MaxHalfOpenRequests: 1,
	}
	cb := NewCircuitBreaker(cfg, zap.NewNop())
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State.String() = %v, want %v", got, tt.expected)
		}
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("replay")
	if cfg.Name != "replay" {
		t.Errorf("Name = %v, want replay", cfg.Name)
	}
	if cfg.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %v, want 5", cfg.FailureThreshold)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errDown) {
			t.Fatalf("Execute() error = %v, want errDown", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want OPEN", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	*now = now.Add(2 * time.Minute)

	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State = %v, want HALF_OPEN", cb.State())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("second probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(ctx, fail)

	if cb.State() != StateOpen {
		t.Errorf("State = %v, want OPEN", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimit(t *testing.T) {
	cb, now := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	*now = now.Add(2 * time.Minute)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			<-release
			return nil
		})
	}()

	deadline := time.Now().Add(time.Second)
	for cb.State() != StateHalfOpen && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("Execute() error = %v, want ErrTooManyRequests", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("probe error = %v", err)
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.config.IsFailure = func(err error) bool { return !errors.Is(err, errDown) }

	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want CLOSED for ignored errors", cb.State())
	}
}

func TestCircuitBreaker_OnStateChangeAndReset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	var transitions []State
	cb.OnStateChange(func(name string, from, to State) {
		if name != "test" {
			t.Errorf("name = %v, want test", name)
		}
		transitions = append(transitions, to)
	})

	_ = cb.Execute(context.Background(), fail)
	cb.Reset()

	if len(transitions) != 2 || transitions[0] != StateOpen || transitions[1] != StateClosed {
		t.Errorf("transitions = %v, want [OPEN CLOSED]", transitions)
	}
}
