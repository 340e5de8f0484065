package dispatch

import (
	"testing"
	"time"
)

func TestRetryPolicyDefaults(t *testing.T) {
	email := DefaultEmailRetryPolicy()
	if email.MaxAttempts != 3 {
		t.Errorf("expected 3 email attempts, got %d", email.MaxAttempts)
	}
	wantEmail := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range wantEmail {
		if got := email.Delay(i + 1); got != want {
			t.Errorf("email delay %d: got %v, want %v", i+1, got, want)
		}
	}

	sms := DefaultSMSRetryPolicy()
	if sms.MaxAttempts != 3 {
		t.Errorf("expected 3 sms attempts, got %d", sms.MaxAttempts)
	}
	wantSMS := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, want := range wantSMS {
		if got := sms.Delay(i + 1); got != want {
			t.Errorf("sms delay %d: got %v, want %v", i+1, got, want)
		}
	}
}

func TestRetryPolicyDelayClamps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Delays: []time.Duration{time.Second, 2 * time.Second}}

	if got := p.Delay(0); got != time.Second {
		t.Errorf("attempt below 1 should clamp to first delay, got %v", got)
	}
	if got := p.Delay(10); got != 2*time.Second {
		t.Errorf("attempt past schedule should repeat last delay, got %v", got)
	}
}

func TestRetryPolicyNoDelays(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}
	if got := p.Delay(1); got != 0 {
		t.Errorf("empty schedule should yield zero delay, got %v", got)
	}
}
