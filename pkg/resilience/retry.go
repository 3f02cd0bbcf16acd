package resilience

import "time"

// RetryPolicy defines retry behavior for transient failures. Delays grow
// exponentially from Backoff so a flapping provider is not hammered with
// immediate reconnects.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: 5 * time.Second}
}

// Delay returns the backoff before retry attempt n (1-based).
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := r.Backoff << (attempt - 1)
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		return r.MaxBackoff
	}
	return d
}

func (r RetryPolicy) Do(fn func() error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == r.MaxRetries {
			return err
		}
		time.Sleep(r.Delay(i + 1))
	}
	return err
}
