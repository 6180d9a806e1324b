package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type transientErr struct{ transient bool }

func (e transientErr) Error() string   { return "api error" }
func (e transientErr) Transient() bool { return e.transient }

// recordingSleep never blocks and records every requested delay.
func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultOptions(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	var observed []int
	opts := DefaultOptions()
	opts.Rand = fixedRand(0)
	opts.Sleep = recordingSleep(&delays)
	opts.OnRetry = func(_ error, attempt int, _ time.Duration) { observed = append(observed, attempt) }

	calls := 0
	v, err := DoValue(context.Background(), opts, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr{transient: true}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("DoValue failed: %v", err)
	}
	if v != "ok" {
		t.Errorf("expected ok, got %q", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Errorf("unexpected delays: %v", delays)
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("unexpected OnRetry attempts: %v", observed)
	}
}

func TestDoReturnsLastErrorOnExhaustion(t *testing.T) {
	var delays []time.Duration
	opts := DefaultOptions()
	opts.Sleep = recordingSleep(&delays)

	last := transientErr{transient: true}
	calls := 0
	err := Do(context.Background(), opts, func(context.Context) error {
		calls++
		return last
	})
	if !errors.Is(err, last) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != opts.MaxAttempts {
		t.Errorf("expected %d calls, got %d", opts.MaxAttempts, calls)
	}
	if len(delays) != opts.MaxAttempts-1 {
		t.Errorf("expected no wait after final attempt, got %d waits", len(delays))
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.Sleep = func(context.Context, time.Duration) error {
		t.Fatal("should not sleep")
		return nil
	}
	perm := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), opts, func(context.Context) error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) || calls != 1 {
		t.Errorf("expected single call with permanent error, got %d calls, err=%v", calls, err)
	}
}

func TestDoCustomShouldRetrySeesAttempt(t *testing.T) {
	var seen []int
	opts := DefaultOptions()
	opts.MaxAttempts = 5
	opts.Sleep = func(context.Context, time.Duration) error { return nil }
	opts.ShouldRetry = func(_ error, attempt int) bool {
		seen = append(seen, attempt)
		return attempt < 2
	}
	_ = Do(context.Background(), opts, func(context.Context) error { return errors.New("x") })
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("unexpected attempts passed to ShouldRetry: %v", seen)
	}
}

func TestDoStopsWhenContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := DefaultOptions()
	opts.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	opErr := transientErr{transient: true}
	err := Do(ctx, opts, func(context.Context) error { return opErr })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !errors.Is(err, opErr) {
		t.Errorf("expected last op error to be joined, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"declared transient", transientErr{transient: true}, true},
		{"declared permanent", transientErr{transient: false}, false},
		{"wrapped transient", errors.Join(errors.New("ctx"), transientErr{transient: true}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
