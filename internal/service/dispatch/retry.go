package dispatch

import "time"

// RetryPolicy is an explicit in-process retry schedule for one channel:
// a fixed number of attempts with a delay before each retry.
type RetryPolicy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultEmailRetryPolicy retries email sends up to 3 times with 1s/2s/4s
// backoff between attempts.
func DefaultEmailRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// DefaultSMSRetryPolicy retries SMS sends up to 3 times with 500ms/1s/2s
// backoff between attempts.
func DefaultSMSRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delays:      []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// Delay returns the wait before the given retry (attempt is 1-based: the
// delay before attempt n+1). Past the configured schedule, the last delay
// repeats.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Delays) {
		attempt = len(p.Delays)
	}
	return p.Delays[attempt-1]
}
