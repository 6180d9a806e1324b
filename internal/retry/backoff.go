package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Options configures an in-line retry loop. Zero fields fall back to the
// values of DefaultOptions.
type Options struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// JitterFactor adds up to this fraction of the base delay on top of it.
	// Jitter never shortens a delay.
	JitterFactor float64

	// ShouldRetry decides whether err from the given 1-based attempt is worth
	// another try. The final attempt is never retried regardless.
	ShouldRetry func(err error, attempt int) bool
	// OnRetry observes every scheduled retry before the wait starts.
	OnRetry func(err error, attempt int, delay time.Duration)

	// Rand returns a value in [0, 1). Tests replace it to pin jitter.
	Rand func() float64
	// Sleep waits for d, returning ctx.Err() if ctx ends first.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns 3 attempts, 1s initial delay doubling up to 10s, with
// 10% positive jitter.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0.1,
		ShouldRetry:       DefaultShouldRetry,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = d.BackoffMultiplier
	}
	if o.JitterFactor < 0 {
		o.JitterFactor = 0
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = d.ShouldRetry
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

// BaseDelay is the un-jittered delay before retry number attempt (1-based):
// min(InitialDelay * BackoffMultiplier^(attempt-1), MaxDelay).
func BaseDelay(attempt int, opts Options) time.Duration {
	opts = opts.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	base := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt-1))
	if base > float64(opts.MaxDelay) || math.IsInf(base, 1) || math.IsNaN(base) {
		base = float64(opts.MaxDelay)
	}
	return time.Duration(base)
}

// CalculateDelay returns BaseDelay plus up to JitterFactor of it as random
// extra wait. The result always lies in [base, base*(1+JitterFactor)].
func CalculateDelay(attempt int, opts Options) time.Duration {
	opts = opts.withDefaults()
	base := BaseDelay(attempt, opts)
	r := opts.Rand()
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	jitter := float64(base) * opts.JitterFactor * r
	return base + time.Duration(jitter)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
