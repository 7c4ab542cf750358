package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsAfterTemporaryFailure(t *testing.T) {
	calls := 0
	var retried []int

	cfg := fastConfig(2)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Temporary(errors.New("connection reset"))
		}
		return nil
	}, cfg)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Errorf("OnRetry attempts = %v, want [1]", retried)
	}
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Temporary(fmt.Errorf("attempt %d", calls))
	}, fastConfig(2))

	if err == nil || err.Error() != "attempt 2" {
		t.Errorf("Do() error = %v, want last attempt error", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_DoesNotRetryUnclassifiedOrPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("insufficient buying power")},
		{"permanent", Permanent(errors.New("400 bad request"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), func(ctx context.Context) error {
				calls++
				return tt.err
			}, fastConfig(3))

			if !errors.Is(err, tt.err) && err != tt.err {
				t.Errorf("Do() error = %v, want %v", err, tt.err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	cfg := fastConfig(2)
	cfg.AttemptTimeout = 10 * time.Millisecond

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, cfg)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	}, fastConfig(3))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Temporary(errors.New("503"))
		}
		return "filled", nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("DoWithResult() error = %v", err)
	}
	if got != "filled" {
		t.Errorf("result = %q, want filled", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"temporary", Temporary(errors.New("x")), true},
		{"wrapped temporary", fmt.Errorf("adapter: %w", Temporary(errors.New("x"))), true},
		{"permanent", Permanent(errors.New("x")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateDelay_CappedByMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	cfg.validate()

	if d := cfg.calculateDelay(0); d != time.Second {
		t.Errorf("delay(0) = %v, want 1s", d)
	}
	if d := cfg.calculateDelay(5); d != 3*time.Second {
		t.Errorf("delay(5) = %v, want 3s", d)
	}
}

func TestPresets(t *testing.T) {
	if cfg := RouterConfig(time.Second); cfg.MaxAttempts != 2 || cfg.AttemptTimeout != time.Second {
		t.Errorf("RouterConfig = %+v", cfg)
	}
	if cfg := FlattenConfig(); cfg.MaxAttempts < 2 {
		t.Errorf("FlattenConfig.MaxAttempts = %d", cfg.MaxAttempts)
	}
}

func TestRetryIfNotContext(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("connection reset"), true},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("quote: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryIfNotContext(tt.err); got != tt.want {
				t.Errorf("RetryIfNotContext(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
