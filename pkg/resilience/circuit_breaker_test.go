package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(2, time.Hour)
	if !cb.Allow() {
		t.Fatal("new breaker must allow")
	}

	rl := RateLimitError{Provider: "vendor", Message: "429"}
	cb.OnError(rl)
	if !cb.Allow() {
		t.Fatal("one failure must not open the breaker")
	}
	cb.OnError(rl)
	if cb.Allow() {
		t.Fatal("breaker still closed after hitting the threshold")
	}
}

func TestCircuitBreakerIgnoresOtherErrors(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(1, time.Hour)
	cb.OnError(errors.New("socket reset"))
	cb.OnError(errors.New("timeout"))
	if !cb.Allow() {
		t.Fatal("non rate-limit errors must not open the breaker")
	}
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(2, time.Hour)
	cb.OnError(RateLimitError{Provider: "vendor"})
	cb.OnSuccess()
	cb.OnError(RateLimitError{Provider: "vendor"})
	if !cb.Allow() {
		t.Fatal("success must reset the failure count")
	}
}
