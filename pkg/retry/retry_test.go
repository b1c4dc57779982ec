package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
)

// recordingSleeper returns immediately and remembers every requested delay
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, test := range tests {
		if delay := backoff.NextDelay(test.attempt); delay != test.expected {
			t.Errorf("Attempt %d: expected %v, got %v", test.attempt, test.expected, delay)
		}
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		d := backoff.NextDelay(2)
		if d < 140*time.Millisecond || d > 260*time.Millisecond {
			t.Fatalf("delay %v outside jitter range", d)
		}
		delays[d] = true
	}
	if len(delays) < 2 {
		t.Error("Expected multiple different delays with jitter, but got consistent delays")
	}
}

func TestRateLimitWait(t *testing.T) {
	p := DefaultPolicy()
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		reset time.Time
		want  time.Duration
	}{
		{"reset in future", now.Add(100 * time.Second), 110 * time.Second},
		{"reset long past clamps to fallback", now.Add(-50 * time.Second), 60 * time.Second},
		{"reset just passed keeps padding remainder", now.Add(-5 * time.Second), 5 * time.Second},
		{"reset now", now, 10 * time.Second},
		{"unknown reset", time.Unix(0, 0), 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.RateLimitWait(tt.reset, now); got != tt.want {
				t.Errorf("RateLimitWait() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransientWaitIsConstant(t *testing.T) {
	p := DefaultPolicy()
	for attempt := 1; attempt <= 5; attempt++ {
		if got := p.TransientWait(attempt); got != 10*time.Second {
			t.Errorf("attempt %d: expected 10s, got %v", attempt, got)
		}
	}
}

func TestBudget(t *testing.T) {
	b := DefaultPolicy().NewBudget()

	for i := 1; i <= 4; i++ {
		if !b.Consume() {
			t.Fatalf("budget exhausted early at failure %d", i)
		}
	}
	if b.Consume() {
		t.Error("Expected fifth failure to exhaust the budget")
	}
	if !b.Exhausted() || b.Remaining() != 0 || b.Used() != 5 {
		t.Errorf("unexpected budget state: used=%d remaining=%d", b.Used(), b.Remaining())
	}
	// further consumption stays pinned at the limit
	b.Consume()
	if b.Used() != 5 {
		t.Errorf("Expected used to stay at 5, got %d", b.Used())
	}
}

func TestRetryWithSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0
	op := func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	err := Do(context.Background(), op, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		Sleep:       sleeper.Sleep,
	})
	if err != nil {
		t.Errorf("Expected success after retries, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(sleeper.delays) != 2 {
		t.Errorf("Expected 2 sleeps, got %d", len(sleeper.delays))
	}
}

func TestRetryWithMaxAttemptsExceeded(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0
	cause := errors.New("persistent error")

	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return cause
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Second},
		Sleep:       sleeper.Sleep,
	})

	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(sleeper.delays) != 2 {
		t.Errorf("Expected no sleep after the final attempt, got %d sleeps", len(sleeper.delays))
	}
}

func TestRetryWithNonRetryableError(t *testing.T) {
	attempts := 0
	notFound := &errs.PermanentError{Code: 404, Message: "gone"}

	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return notFound
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
	})

	if err != notFound {
		t.Errorf("Expected permanent error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	if DefaultRetryIf(nil) {
		t.Error("nil error must not be retried")
	}
	if DefaultRetryIf(context.Canceled) {
		t.Error("cancellation must not be retried")
	}
	if DefaultRetryIf(errs.NewConfigurationError("apikeys", "empty")) {
		t.Error("configuration errors must not be retried")
	}
	if !DefaultRetryIf(errs.NewTransient(errs.ErrorTypeNetwork, 0, "dial", nil)) {
		t.Error("transient errors must be retried")
	}
	if !DefaultRetryIf(&errs.RateLimitError{Resource: "search"}) {
		t.Error("rate limits must be retried")
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 50 * time.Millisecond},
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts before cancellation, got %d", attempts)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), func(context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("temporary error")
		}
		return "token", nil
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "token" {
		t.Errorf("Expected 'token', got '%s'", result)
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("zero wait returned %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancellation")
	}
}
