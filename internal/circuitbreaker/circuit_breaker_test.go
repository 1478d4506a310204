package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		Name:             "test",
		MaxFailures:      3,
		Timeout:          10 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}
}

func failing() error { return errors.New("boom") }
func ok() error      { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	if err := cb.Execute(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, ok)
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)

	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed (failures not consecutive)", cb.GetState())
	}
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}
	time.Sleep(15 * time.Millisecond)

	// Probe budget of 2 must succeed to close.
	if err := cb.Execute(ctx, ok); err != nil {
		t.Fatalf("probe 1 error = %v", err)
	}
	if err := cb.Execute(ctx, ok); err != nil {
		t.Fatalf("probe 2 error = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed after recovery", cb.GetState())
	}
}

func TestCircuitBreaker_ReopensOnHalfOpenFailure(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}
	time.Sleep(15 * time.Millisecond)

	_ = cb.Execute(ctx, failing)
	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want open after half-open failure", cb.GetState())
	}
}
