package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if policy.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	if policy.Delay != 2*time.Second {
		t.Errorf("Delay = %v, want 2s", policy.Delay)
	}
	if policy.Sleep == nil {
		t.Error("Sleep should default to SleepContext")
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	errFail := &FetchError{Class: ErrorClassStatus, StatusCode: 500, Err: errors.New("server error")}

	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		wantAttempts int
		wantErr      bool
		wantSleeps   int
	}{
		{
			name:         "success on first attempt",
			maxAttempts:  3,
			failures:     0,
			wantAttempts: 1,
			wantErr:      false,
			wantSleeps:   0,
		},
		{
			name:         "success after retries",
			maxAttempts:  3,
			failures:     2,
			wantAttempts: 3,
			wantErr:      false,
			wantSleeps:   2,
		},
		{
			name:         "exhausted",
			maxAttempts:  3,
			failures:     10,
			wantAttempts: 3,
			wantErr:      true,
			wantSleeps:   2,
		},
		{
			name:         "single attempt never sleeps",
			maxAttempts:  1,
			failures:     10,
			wantAttempts: 1,
			wantErr:      true,
			wantSleeps:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &recordingSleep{}
			policy := RetryPolicy{MaxAttempts: tt.maxAttempts, Delay: 2 * time.Second, Sleep: sleeper.Sleep}

			calls := 0
			attempts, err := policy.Do(context.Background(), func(attempt int) error {
				calls++
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				if calls <= tt.failures {
					return errFail
				}
				return nil
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if calls != tt.wantAttempts {
				t.Errorf("fn called %d times, want %d", calls, tt.wantAttempts)
			}
			if len(sleeper.delays) != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", len(sleeper.delays), tt.wantSleeps)
			}
			for _, d := range sleeper.delays {
				if d != 2*time.Second {
					t.Errorf("delay = %v, want flat 2s", d)
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrRetryExhausted) {
					t.Errorf("error should wrap ErrRetryExhausted: %v", err)
				}
				if !errors.Is(err, errFail) {
					t.Errorf("error should wrap the last attempt error: %v", err)
				}
			}
		})
	}
}

func TestRetryPolicy_Do_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{
		MaxAttempts: 5,
		Delay:       time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	calls := 0
	attempts, err := policy.Do(ctx, func(int) error {
		calls++
		return errors.New("fail")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1 and 1", calls, attempts)
	}
}

func TestRetryPolicy_Do_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := DefaultRetryPolicy().Do(ctx, func(int) error {
		calls++
		return nil
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if calls != 0 || attempts != 0 {
		t.Errorf("calls = %d, attempts = %d, want 0", calls, attempts)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := SleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("SleepContext() = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("SleepContext should return immediately on a cancelled context")
	}

	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("SleepContext() = %v, want nil", err)
	}
}
