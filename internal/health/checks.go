package health

import (
	"context"
	"fmt"

	"github.com/sorane/livetl/internal/resilience"
)

// BreakerChecker reports ready only while the named provider's circuit
// breaker is not open. A half-open breaker still counts as ready since
// probe calls are flowing.
func BreakerChecker(name string, cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: name,
		Check: func(_ context.Context) error {
			if state := cb.State(); state == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return nil
		},
	}
}
