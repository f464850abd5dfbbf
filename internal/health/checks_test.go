package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sorane/livetl/internal/resilience"
)

func TestBreakerChecker(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "translate",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
	})

	check := BreakerChecker("translate", cb)
	if err := check.Check(context.Background()); err != nil {
		t.Fatalf("closed breaker should be ready, got %v", err)
	}

	_ = cb.Execute(func() error { return errors.New("provider down") })
	if cb.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}
	if err := check.Check(context.Background()); err == nil {
		t.Fatal("open breaker should report not ready")
	}

	cb.Reset()
	if err := check.Check(context.Background()); err != nil {
		t.Fatalf("reset breaker should be ready, got %v", err)
	}
}
